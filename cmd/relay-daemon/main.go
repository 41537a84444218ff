package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"carelay/go-backend/internal/composition/relay"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	printFlow := flag.Bool("print-flow", false, "print the stage graphs in Graphviz DOT and exit")
	configPath := flag.String("config", "", "Path to relay.yaml (optional)")
	envFile := flag.String("env-file", "", "Path to a .env file (optional, defaults to ./.env)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("relay-daemon version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}
	if *printFlow {
		if err := relay.PrintFlow(os.Stdout); err != nil {
			log.Fatalf("relay-daemon failed to render flow: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := relay.LoadConfig(*configPath, *envFile)
	if err != nil {
		log.Fatalf("relay-daemon failed to load config: %v", err)
	}
	r, err := relay.New(cfg, relay.Options{})
	if err != nil {
		log.Fatalf("relay-daemon failed to initialize: %v", err)
	}

	log.Println("relay-daemon starting")
	if err := r.Run(ctx); err != nil {
		log.Fatalf("relay-daemon failed: %v", err)
	}
	log.Println("relay-daemon stopped")
}
