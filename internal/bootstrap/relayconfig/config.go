package relayconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"carelay/go-backend/internal/domains/address"
	"carelay/go-backend/internal/domains/contracts"

	"gopkg.in/yaml.v3"
)

const (
	TransportWebsocket = "websocket"
	TransportMock      = "mock"

	defaultConfigPath = "configs/relay.yaml"
)

type Config struct {
	Transport TransportConfig
	SOL       ChainConfig
	BNB       ChainConfig
	Commands  CommandsConfig
	Outbound  OutboundConfig
	Health    HealthConfig
	LogLevel  string
}

type TransportConfig struct {
	Kind        string
	BridgeURL   string
	BridgeToken string
	AckTimeout  time.Duration
}

type ChainConfig struct {
	Source      string
	Marker      string
	Scanner     string
	Analyst     string
	Destination string
	Pattern     string
}

type CommandsConfig struct {
	StepOne string
	StepTwo string
}

type OutboundConfig struct {
	RatePerSecond float64
	Burst         int
	PeerQueueSize int
}

type HealthConfig struct {
	Listen string
}

// FileConfig mirrors the yaml layout; unset fields keep defaults.
type FileConfig struct {
	Transport struct {
		Kind        string        `yaml:"kind"`
		BridgeURL   string        `yaml:"bridgeURL"`
		BridgeToken string        `yaml:"bridgeToken"`
		AckTimeout  time.Duration `yaml:"ackTimeout"`
	} `yaml:"transport"`
	Chains struct {
		SOL FileChainConfig `yaml:"sol"`
		BNB FileChainConfig `yaml:"bnb"`
	} `yaml:"chains"`
	Commands struct {
		StepOne string `yaml:"stepOne"`
		StepTwo string `yaml:"stepTwo"`
	} `yaml:"commands"`
	Outbound struct {
		RatePerSecond float64 `yaml:"ratePerSecond"`
		Burst         int     `yaml:"burst"`
		PeerQueueSize int     `yaml:"peerQueueSize"`
	} `yaml:"outbound"`
	Health struct {
		Listen string `yaml:"listen"`
	} `yaml:"health"`
	LogLevel string `yaml:"logLevel"`
}

type FileChainConfig struct {
	Source      string `yaml:"source"`
	Marker      string `yaml:"marker"`
	Scanner     string `yaml:"scanner"`
	Analyst     string `yaml:"analyst"`
	Destination string `yaml:"destination"`
	Pattern     string `yaml:"pattern"`
}

func DefaultConfig() Config {
	return Config{
		Transport: TransportConfig{
			Kind:       TransportWebsocket,
			AckTimeout: 30 * time.Second,
		},
		SOL: ChainConfig{
			Source:      "solwhaletrending",
			Marker:      "🔥",
			Scanner:     "soul_scanner_bot",
			Analyst:     "PhanesRedBot",
			Destination: "-4920907358",
		},
		BNB: ChainConfig{
			Source:      "AveSignalMonitor",
			Marker:      "🪙",
			Analyst:     "PhanesRedBot",
			Destination: "-4982124188",
		},
		Commands: CommandsConfig{
			StepOne: "/th",
			StepTwo: "/tt",
		},
		Outbound: OutboundConfig{
			RatePerSecond: 1,
			Burst:         3,
			PeerQueueSize: 64,
		},
		Health: HealthConfig{
			Listen: "0.0.0.0:8080",
		},
		LogLevel: "info",
	}
}

// LoadFromPath reads configPath (or the default location when empty),
// merges it over the defaults and applies environment overrides. A missing
// default file is not an error; a missing explicit file is.
func LoadFromPath(configPath string) (Config, error) {
	cfg := DefaultConfig()

	path := strings.TrimSpace(configPath)
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, contracts.WrapCategorizedError(contracts.ErrorCategoryConfig, fmt.Errorf("parse %s: %w", path, err))
		}
		Merge(&cfg, parsed)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, contracts.WrapCategorizedError(contracts.ErrorCategoryConfig, fmt.Errorf("read %s: %w", path, err))
	}

	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

func Merge(dst *Config, src FileConfig) {
	if src.Transport.Kind != "" {
		dst.Transport.Kind = src.Transport.Kind
	}
	if src.Transport.BridgeURL != "" {
		dst.Transport.BridgeURL = src.Transport.BridgeURL
	}
	if src.Transport.BridgeToken != "" {
		dst.Transport.BridgeToken = src.Transport.BridgeToken
	}
	if src.Transport.AckTimeout != 0 {
		dst.Transport.AckTimeout = src.Transport.AckTimeout
	}
	mergeChain(&dst.SOL, src.Chains.SOL)
	mergeChain(&dst.BNB, src.Chains.BNB)
	if src.Commands.StepOne != "" {
		dst.Commands.StepOne = src.Commands.StepOne
	}
	if src.Commands.StepTwo != "" {
		dst.Commands.StepTwo = src.Commands.StepTwo
	}
	if src.Outbound.RatePerSecond != 0 {
		dst.Outbound.RatePerSecond = src.Outbound.RatePerSecond
	}
	if src.Outbound.Burst != 0 {
		dst.Outbound.Burst = src.Outbound.Burst
	}
	if src.Outbound.PeerQueueSize != 0 {
		dst.Outbound.PeerQueueSize = src.Outbound.PeerQueueSize
	}
	if src.Health.Listen != "" {
		dst.Health.Listen = src.Health.Listen
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

func mergeChain(dst *ChainConfig, src FileChainConfig) {
	if src.Source != "" {
		dst.Source = src.Source
	}
	if src.Marker != "" {
		dst.Marker = src.Marker
	}
	if src.Scanner != "" {
		dst.Scanner = src.Scanner
	}
	if src.Analyst != "" {
		dst.Analyst = src.Analyst
	}
	if src.Destination != "" {
		dst.Destination = src.Destination
	}
	if src.Pattern != "" {
		dst.Pattern = src.Pattern
	}
}

// Validate rejects configs the relay cannot start with.
func (c Config) Validate() error {
	var problems []string
	switch c.Transport.Kind {
	case TransportMock:
	case TransportWebsocket:
		if strings.TrimSpace(c.Transport.BridgeURL) == "" {
			problems = append(problems, "transport.bridgeURL is required for the websocket transport")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown transport %q", c.Transport.Kind))
	}
	problems = append(problems, c.SOL.problems("sol", true, address.SolanaPattern())...)
	problems = append(problems, c.BNB.problems("bnb", false, address.EVMPattern())...)
	if strings.TrimSpace(c.Commands.StepOne) == "" || strings.TrimSpace(c.Commands.StepTwo) == "" {
		problems = append(problems, "commands.stepOne and commands.stepTwo are required")
	}
	if _, err := ResolveListenAddr(c.Health.Listen); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) == 0 {
		return nil
	}
	return contracts.WrapCategorizedError(contracts.ErrorCategoryConfig,
		fmt.Errorf("%w: %s", contracts.ErrInvalidConfig, strings.Join(problems, "; ")))
}

func (c ChainConfig) problems(name string, needsScanner bool, base address.Pattern) []string {
	var out []string
	required := map[string]string{
		"source":      c.Source,
		"marker":      c.Marker,
		"analyst":     c.Analyst,
		"destination": c.Destination,
	}
	if needsScanner {
		required["scanner"] = c.Scanner
	}
	for _, field := range []string{"source", "marker", "scanner", "analyst", "destination"} {
		value, ok := required[field]
		if ok && strings.TrimSpace(value) == "" {
			out = append(out, fmt.Sprintf("chains.%s.%s is required", name, field))
		}
	}
	if _, err := base.WithShape(c.Pattern); err != nil {
		out = append(out, err.Error())
	}
	return out
}
