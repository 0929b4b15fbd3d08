package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "voting.config"

// EnvPrefix is prepended to every environment variable, e.g. VOTING_SERVER_ADDRESS
const EnvPrefix = "VOTING"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	Server   ServerConfig   `yaml:"server"   envconfig:"server"`
	Election ElectionConfig `yaml:"election" envconfig:"election"`
	Ledger   LedgerConfig   `yaml:"ledger"   envconfig:"ledger"`
	Storage  StorageConfig  `yaml:"storage"  envconfig:"storage"`
	Logging  LoggingConfig  `yaml:"logging"  envconfig:"logging"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	StaticDir       string        `yaml:"staticDir"       split_words:"true"`
	PingMessage     string        `yaml:"pingMessage"     split_words:"true"`
	AdminToken      string        `yaml:"adminToken"      split_words:"true"`
	CastDelay       time.Duration `yaml:"castDelay"       split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
	MetricsEnabled  bool          `yaml:"metricsEnabled"  split_words:"true"`
}

type ElectionConfig struct {
	// Empty uses the built-in catalog
	CatalogPath string        `yaml:"catalogPath" split_words:"true"`
	Duration    time.Duration `yaml:"duration"`
}

type LedgerConfig struct {
	Difficulty uint8 `yaml:"difficulty"`
}

type StorageConfig struct {
	Dir              string        `yaml:"dir"`
	Keep             int           `yaml:"keep"`
	ExportOnShutdown bool          `yaml:"exportOnShutdown" split_words:"true"`
	ExportInterval   time.Duration `yaml:"exportInterval"   split_words:"true"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a fresh config populated with defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			PingMessage:     "Blockchain Voting API is running",
			ShutdownTimeout: 30 * time.Second,
			MetricsEnabled:  true,
		},
		Election: ElectionConfig{
			Duration: 24 * time.Hour,
		},
		Storage: StorageConfig{
			Dir:              "data",
			Keep:             5,
			ExportOnShutdown: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load layers defaults, then the YAML file at configFile (if any), then
// environment variables, and validates the result
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Address) == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if c.Server.CastDelay < 0 {
		errs = append(errs, errors.New("server.castDelay must not be negative"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdownTimeout must be positive"))
	}
	if c.Election.Duration <= 0 {
		errs = append(errs, errors.New("election.duration must be positive"))
	}
	if c.Ledger.Difficulty > 3 {
		errs = append(errs, fmt.Errorf("ledger.difficulty %d is above the maximum of 3", c.Ledger.Difficulty))
	}
	if c.Storage.ExportInterval < 0 {
		errs = append(errs, errors.New("storage.exportInterval must not be negative"))
	}
	if c.Storage.Keep < 1 {
		errs = append(errs, errors.New("storage.keep must be at least 1"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
