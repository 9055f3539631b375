package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs at boot. Loaded from YAML with
// environment overrides for deployment-specific values.
type Config struct {
	Server struct {
		GRPCAddr string `yaml:"grpc_addr"`
		WSAddr   string `yaml:"ws_addr"`
	} `yaml:"server"`

	WAL struct {
		Dir         string `yaml:"dir"`
		SegmentSize int64  `yaml:"segment_size"`
	} `yaml:"wal"`

	Outbox struct {
		Dir string `yaml:"dir"`
	} `yaml:"outbox"`

	Kafka struct {
		Brokers         []string `yaml:"brokers"`
		FillTopic       string   `yaml:"fill_topic"`
		QuoteTopic      string   `yaml:"quote_topic"`
		SettlementTopic string   `yaml:"settlement_topic"`
	} `yaml:"kafka"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Engine struct {
		InboxSize        int    `yaml:"inbox_size"`
		CrossRule        string `yaml:"cross_rule"` // direct | complement
		EpochIntervalSec int    `yaml:"epoch_interval_sec"`
	} `yaml:"engine"`

	Chaos struct {
		Enabled     bool    `yaml:"enabled"`
		Seed        int64   `yaml:"seed"`
		RatePerSec  float64 `yaml:"rate_per_sec"`
		MaxQty      int64   `yaml:"max_qty"`
		PriceJitter int64   `yaml:"price_jitter"`
	} `yaml:"chaos"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns a config usable without a file, for tests and local runs.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.GRPCAddr = ":50051"
	cfg.Server.WSAddr = ":8080"
	cfg.WAL.Dir = "./data/wal"
	cfg.WAL.SegmentSize = 2 * 1024 * 1024
	cfg.Outbox.Dir = "./data/outbox"
	cfg.Kafka.FillTopic = "fills"
	cfg.Kafka.QuoteTopic = "quotes"
	cfg.Kafka.SettlementTopic = "settlements"
	cfg.Storage.Path = "./data/settlement.db"
	cfg.Engine.InboxSize = 4096
	cfg.Engine.CrossRule = "direct"
	cfg.Engine.EpochIntervalSec = 2
	cfg.Chaos.RatePerSec = 10
	cfg.Chaos.MaxQty = 20
	cfg.Chaos.PriceJitter = 5
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return cfg
}

func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return fmt.Errorf("server grpc_addr is required")
	}
	if c.WAL.Dir == "" || c.Outbox.Dir == "" {
		return fmt.Errorf("wal and outbox directories are required")
	}
	if c.Engine.InboxSize <= 0 {
		return fmt.Errorf("engine inbox_size must be positive")
	}
	switch c.Engine.CrossRule {
	case "direct", "complement":
	default:
		return fmt.Errorf("unknown cross_rule %q", c.Engine.CrossRule)
	}
	if c.Chaos.Enabled {
		if c.Chaos.RatePerSec <= 0 {
			return fmt.Errorf("chaos rate_per_sec must be positive when enabled")
		}
		if c.Chaos.MaxQty <= 0 {
			return fmt.Errorf("chaos max_qty must be positive when enabled")
		}
	}
	return nil
}

func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("JANUS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("JANUS_GRPC_ADDR"); v != "" {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv("JANUS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
