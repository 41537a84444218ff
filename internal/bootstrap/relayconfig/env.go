package relayconfig

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// LoadEnvFile loads KEY=VALUE pairs from path without overriding variables
// that are already set. An empty path tries .env and tolerates its absence.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		if _, err := os.Stat(defaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		path = defaultEnvFile
	}
	return godotenv.Load(path)
}

// ApplyEnvOverrides lets the hosting environment override file settings.
func ApplyEnvOverrides(cfg *Config) {
	setString(&cfg.Transport.Kind, "CARELAY_TRANSPORT")
	setString(&cfg.Transport.BridgeURL, "CARELAY_BRIDGE_URL")
	setString(&cfg.Transport.BridgeToken, "CARELAY_BRIDGE_TOKEN")
	setString(&cfg.SOL.Source, "CARELAY_SOL_SOURCE")
	setString(&cfg.BNB.Source, "CARELAY_BNB_SOURCE")
	setString(&cfg.SOL.Destination, "CARELAY_SOL_DESTINATION")
	setString(&cfg.BNB.Destination, "CARELAY_BNB_DESTINATION")
	setString(&cfg.SOL.Scanner, "CARELAY_SCANNER_PEER")
	if analyst := envString("CARELAY_ANALYST_PEER"); analyst != "" {
		cfg.SOL.Analyst = analyst
		cfg.BNB.Analyst = analyst
	}
	setString(&cfg.LogLevel, "CARELAY_LOG_LEVEL")

	cfg.Outbound.RatePerSecond = envFloatWithFallback("CARELAY_OUTBOUND_RPS", cfg.Outbound.RatePerSecond)
	cfg.Outbound.Burst = envBoundedIntWithFallback("CARELAY_OUTBOUND_BURST", cfg.Outbound.Burst, 1, 100)

	if listen := envString("CARELAY_HEALTH_ADDR"); listen != "" {
		cfg.Health.Listen = listen
	} else if port := envString("PORT"); port != "" {
		cfg.Health.Listen = "0.0.0.0:" + port
	}
}

func setString(dst *string, key string) {
	if v := envString(key); v != "" {
		*dst = v
	}
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envFloatWithFallback(key string, fallback float64) float64 {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envIntWithFallback(key string, fallback int) int {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBoundedIntWithFallback(key string, fallback, min, max int) int {
	value := envIntWithFallback(key, fallback)
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
