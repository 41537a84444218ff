package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"carelay/go-backend/internal/adapters/health"
	"carelay/go-backend/internal/bootstrap/relayconfig"
	"carelay/go-backend/internal/domains/address"
	"carelay/go-backend/internal/domains/contracts"
	"carelay/go-backend/internal/domains/pipeline"
	"carelay/go-backend/internal/platform/metrics"
	"carelay/go-backend/internal/platform/ratelimiter"
	"carelay/go-backend/internal/transport/membus"
	"carelay/go-backend/internal/transport/wsbridge"

	"golang.org/x/sync/errgroup"
)

// Options overrides pieces of the wiring; zero values use the config.
type Options struct {
	Transport contracts.Transport
	Logger    *slog.Logger
}

// Relay owns the transport, the pipeline and the health endpoint.
type Relay struct {
	cfg       relayconfig.Config
	logger    *slog.Logger
	transport contracts.Transport
	service   *pipeline.Service
	router    *pipeline.Router
	metrics   *metrics.Pipeline
	health    *health.Server
	listen    string
}

// LoadConfig reads the env file, the yaml file and the environment, then
// validates the result.
func LoadConfig(configPath, envFile string) (relayconfig.Config, error) {
	if err := relayconfig.LoadEnvFile(envFile); err != nil {
		return relayconfig.Config{}, contracts.WrapCategorizedError(contracts.ErrorCategoryConfig, fmt.Errorf("load env file: %w", err))
	}
	cfg, err := relayconfig.LoadFromPath(configPath)
	if err != nil {
		return relayconfig.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return relayconfig.Config{}, err
	}
	return cfg, nil
}

func New(cfg relayconfig.Config, opts Options) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(cfg.LogLevel, nil)
	}
	listen, err := relayconfig.ResolveListenAddr(cfg.Health.Listen)
	if err != nil {
		return nil, err
	}

	transport := opts.Transport
	if transport == nil {
		transport, err = newTransport(cfg.Transport, logger)
		if err != nil {
			return nil, err
		}
	}

	routes, err := buildRoutes(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.NewPipeline()
	var throttle pipeline.Throttle
	if limiter := ratelimiter.New(cfg.Outbound.RatePerSecond, cfg.Outbound.Burst, 0); limiter != nil {
		throttle = limiter
	}
	actuator := pipeline.NewActuator(transport, throttle, m, logger)
	svc, err := pipeline.NewService(pipeline.ServiceDeps{
		Routes: routes,
		Commands: pipeline.Commands{
			StepOne: cfg.Commands.StepOne,
			StepTwo: cfg.Commands.StepTwo,
		},
		Actuator: actuator,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &Relay{
		cfg:       cfg,
		logger:    logger,
		transport: transport,
		service:   svc,
		router:    pipeline.NewRouter(svc, cfg.Outbound.PeerQueueSize),
		metrics:   m,
		health:    health.NewServer(listen, transport, m.Registry()),
		listen:    listen,
	}, nil
}

func (r *Relay) Service() *pipeline.Service {
	return r.service
}

func (r *Relay) Metrics() *metrics.Pipeline {
	return r.metrics
}

// Run blocks until ctx ends or one of the transport, router or health
// server fails; the first failure stops the others.
func (r *Relay) Run(ctx context.Context) error {
	inbound := make(chan contracts.InboundMessage, r.cfg.Outbound.PeerQueueSize)
	g, gctx := errgroup.WithContext(ctx)

	r.logger.Info("relay starting",
		"component", "relay",
		"transport", r.cfg.Transport.Kind,
		"bridge_url", r.cfg.Transport.BridgeURL,
		"health_listen", r.listen,
		"sol_source", r.cfg.SOL.Source,
		"bnb_source", r.cfg.BNB.Source,
	)
	g.Go(func() error {
		if err := r.transport.Run(gctx, inbound); err != nil {
			r.metrics.RecordError(contracts.ErrorCategory(err))
			return fmt.Errorf("transport: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return r.router.Run(gctx, inbound)
	})
	g.Go(func() error {
		if err := r.health.Run(gctx); err != nil {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	err := g.Wait()
	pending := r.service.Store().Snapshot()
	for _, inst := range pending {
		r.logger.Warn("instance pending at shutdown",
			"component", "relay",
			"correlation_id", inst.TraceID.String(),
			"chain", inst.Chain.String(),
			"address", inst.Address,
			"stage", inst.Stage.String(),
			"age", time.Since(inst.CreatedAt).Round(time.Second).String(),
		)
	}
	r.logger.Info("relay stopped", "component", "relay", "pending", len(pending))
	return err
}

// PrintFlow writes the stage graph of every chain in Graphviz DOT.
func PrintFlow(w io.Writer) error {
	for _, chain := range []pipeline.Chain{pipeline.ChainSOL, pipeline.ChainBNB} {
		flow, err := pipeline.FlowFor(chain)
		if err != nil {
			return err
		}
		if err := flow.WriteDOT(w); err != nil {
			return err
		}
	}
	return nil
}

func newTransport(cfg relayconfig.TransportConfig, logger *slog.Logger) (contracts.Transport, error) {
	switch cfg.Kind {
	case relayconfig.TransportMock:
		return membus.New(), nil
	case relayconfig.TransportWebsocket:
		return wsbridge.New(wsbridge.Config{
			URL:        cfg.BridgeURL,
			Token:      cfg.BridgeToken,
			AckTimeout: cfg.AckTimeout,
			Logger:     logger,
		})
	default:
		return nil, contracts.WrapCategorizedError(contracts.ErrorCategoryConfig,
			fmt.Errorf("%w: unknown transport %q", contracts.ErrInvalidConfig, cfg.Kind))
	}
}

func buildRoutes(cfg relayconfig.Config) ([]pipeline.Route, error) {
	sol, err := address.SolanaPattern().WithShape(cfg.SOL.Pattern)
	if err != nil {
		return nil, err
	}
	bnb, err := address.EVMPattern().WithShape(cfg.BNB.Pattern)
	if err != nil {
		return nil, err
	}
	return []pipeline.Route{
		chainRoute(pipeline.ChainSOL, cfg.SOL, sol),
		chainRoute(pipeline.ChainBNB, cfg.BNB, bnb),
	}, nil
}

func chainRoute(chain pipeline.Chain, cfg relayconfig.ChainConfig, pattern address.Pattern) pipeline.Route {
	return pipeline.Route{
		Chain:       chain,
		Source:      cfg.Source,
		Marker:      cfg.Marker,
		Pattern:     pattern,
		Scanner:     cfg.Scanner,
		Analyst:     cfg.Analyst,
		Destination: cfg.Destination,
	}
}
