// Package config loads the service configuration from YAML, applies struct-tag defaults and
// validates it. Each pipeline package owns its own Config; this package only composes them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/jwtly10/tradegate/internal/decision"
	"github.com/jwtly10/tradegate/internal/engine"
	"github.com/jwtly10/tradegate/internal/publish"
	"github.com/jwtly10/tradegate/internal/snapshot"
	"github.com/jwtly10/tradegate/internal/types"
	"gopkg.in/yaml.v3"
)

var (
	ErrConfiguration = errors.New("invalid configuration")

	validate = validator.New()
)

type Config struct {
	Environment string   `yaml:"environment" default:"dev" validate:"oneof=dev test paper prod"`
	Symbols     []string `yaml:"symbols" default:"[\"QQQ\"]" validate:"min=1,dive,required"`

	Engine   engine.Config          `yaml:"engine"`
	Verifier decision.ScoreVerifier `yaml:"verifier"`
	Logging  Logging                `yaml:"logging"`
	Metrics  Metrics                `yaml:"metrics"`
	Snapshot Snapshot               `yaml:"snapshot"`
	Publish  Publish                `yaml:"publish"`
	Oanda    Oanda                  `yaml:"oanda"`
	Replay   Replay                 `yaml:"replay"`
}

type Logging struct {
	Level  string   `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Topics []string `yaml:"topics"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" default:":9090"`
}

type Snapshot struct {
	Backend  string               `yaml:"backend" default:"file" validate:"oneof=none file redis postgres"`
	Path     string               `yaml:"path" default:"data/snapshot.json"`
	Interval time.Duration        `yaml:"interval" default:"1m" validate:"gte=0"`
	Redis    snapshot.RedisConfig `yaml:"redis" validate:"-"`
	Postgres Postgres             `yaml:"postgres" validate:"-"`
}

type Postgres struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns" default:"4" validate:"gte=1"`
}

type Publish struct {
	Sink  string              `yaml:"sink" default:"log" validate:"oneof=none log kafka"`
	Kafka publish.KafkaConfig `yaml:"kafka" validate:"-"`
}

type Oanda struct {
	AccountID string `yaml:"account_id"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url" default:"https://api-fxpractice.oanda.com"`
	// Instruments maps a symbol to its Oanda instrument name, e.g. QQQ: NAS100_USD.
	Instruments map[string]string `yaml:"instruments"`
}

type Replay struct {
	Timeframe  types.Timeframe `yaml:"timeframe" default:"5m" validate:"oneof=1m 5m 15m"`
	Lookback   time.Duration   `yaml:"lookback" default:"720h" validate:"gt=0"`
	WarmupBars int             `yaml:"warmup_bars" default:"120" validate:"gte=0"`
	ExportPath string          `yaml:"export_path"`
	MaxPrinted int             `yaml:"max_printed" default:"5" validate:"gte=0"`
}

// Default returns the configuration with every default applied.
func Default() Config {
	c := Config{
		Engine:   engine.DefaultConfig(),
		Verifier: decision.DefaultScoreVerifier(),
	}
	// the package defaults are already set, so this only fills the zero values around them
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrConfiguration, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("TRADEGATE_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("TRADEGATE_SYMBOLS"); v != "" {
		c.Symbols = splitList(v)
	}
	if v := getenv("TRADEGATE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("DEBUG_TOPICS"); v != "" {
		c.Logging.Topics = splitList(v)
	}
	if v := getenv("TRADEGATE_REDIS_ADDR"); v != "" {
		c.Snapshot.Redis.Addr = v
	}
	if v := getenv("TRADEGATE_POSTGRES_URL"); v != "" {
		c.Snapshot.Postgres.URL = v
	}
	if v := getenv("TRADEGATE_KAFKA_BROKERS"); v != "" {
		c.Publish.Kafka.Brokers = splitList(v)
	}
	if v := getenv("TRADEGATE_KAFKA_TOPIC"); v != "" {
		c.Publish.Kafka.Topic = v
	}
	if v := getenv("OANDA_ACCOUNT_ID"); v != "" {
		c.Oanda.AccountID = v
	}
	if v := getenv("OANDA_API_KEY"); v != "" {
		c.Oanda.APIKey = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate runs the struct tags and then the checks that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrConfiguration, describe(err))
	}
	if err := c.Engine.Filters.Validate(); err != nil {
		return fmt.Errorf("%w: filters: %v", ErrConfiguration, err)
	}
	if c.Engine.MacroTimeframe.Finer(c.Engine.DecisionTimeframe) {
		return fmt.Errorf("%w: macro timeframe %s is finer than decision timeframe %s", ErrConfiguration, c.Engine.MacroTimeframe, c.Engine.DecisionTimeframe)
	}
	if c.Replay.Timeframe != c.Engine.DecisionTimeframe && !c.Replay.Timeframe.Finer(c.Engine.DecisionTimeframe) {
		return fmt.Errorf("%w: replay timeframe %s is coarser than decision timeframe %s", ErrConfiguration, c.Replay.Timeframe, c.Engine.DecisionTimeframe)
	}

	switch c.Snapshot.Backend {
	case "file":
		if c.Snapshot.Path == "" {
			return fmt.Errorf("%w: snapshot.path is required for the file backend", ErrConfiguration)
		}
	case "redis":
		if c.Snapshot.Redis.Addr == "" {
			return fmt.Errorf("%w: snapshot.redis.addr is required for the redis backend", ErrConfiguration)
		}
	case "postgres":
		if c.Snapshot.Postgres.URL == "" {
			return fmt.Errorf("%w: snapshot.postgres.url is required for the postgres backend", ErrConfiguration)
		}
	}
	if c.Publish.Sink == "kafka" {
		if len(c.Publish.Kafka.Brokers) == 0 {
			return fmt.Errorf("%w: publish.kafka.brokers is required for the kafka sink", ErrConfiguration)
		}
		if c.Publish.Kafka.Topic == "" {
			return fmt.Errorf("%w: publish.kafka.topic is required for the kafka sink", ErrConfiguration)
		}
	}
	return nil
}

// describe flattens validator errors into "Field: tag=param" pairs.
func describe(err error) string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err.Error()
	}
	parts := make([]string, 0, len(ves))
	for _, fe := range ves {
		msg := fe.Namespace() + ": " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}
