package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ipro-analytics/ipro-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Ingest       IngestConfig       `yaml:"ingest" mapstructure:"ingest"`
	Analytics    AnalyticsConfig    `yaml:"analytics" mapstructure:"analytics"`
	Segmentation SegmentationConfig `yaml:"segmentation" mapstructure:"segmentation"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// IngestConfig configures spreadsheet extraction.
type IngestConfig struct {
	AliasFile   string `yaml:"alias_file" mapstructure:"alias_file"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// AnalyticsConfig tunes the metrics and alert engines.
type AnalyticsConfig struct {
	LogisticsDelayDays   int     `yaml:"logistics_delay_days" mapstructure:"logistics_delay_days"`
	RepurchaseWindowDays int     `yaml:"repurchase_window_days" mapstructure:"repurchase_window_days"`
	ZThreshold           float64 `yaml:"z_threshold" mapstructure:"z_threshold"`
	HeroPercentile       float64 `yaml:"hero_percentile" mapstructure:"hero_percentile"`
}

// SegmentationConfig holds the behavior-score weights. They must sum
// to 1.
type SegmentationConfig struct {
	MixWeight       float64 `yaml:"mix_weight" mapstructure:"mix_weight"`
	VolumeWeight    float64 `yaml:"volume_weight" mapstructure:"volume_weight"`
	FrequencyWeight float64 `yaml:"frequency_weight" mapstructure:"frequency_weight"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port      int     `yaml:"port" mapstructure:"port"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second per server
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("IPRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ipro.db")
	v.SetDefault("ingest.concurrency", 2)
	v.SetDefault("analytics.logistics_delay_days", 20)
	v.SetDefault("analytics.repurchase_window_days", 90)
	v.SetDefault("analytics.z_threshold", 3.0)
	v.SetDefault("analytics.hero_percentile", 0.8)
	v.SetDefault("segmentation.mix_weight", 0.35)
	v.SetDefault("segmentation.volume_weight", 0.35)
	v.SetDefault("segmentation.frequency_weight", 0.30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required for a given run mode.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Analytics.LogisticsDelayDays < 0 {
		problems = append(problems, "analytics.logistics_delay_days must be >= 0")
	}
	if c.Analytics.RepurchaseWindowDays <= 0 {
		problems = append(problems, "analytics.repurchase_window_days must be > 0")
	}
	if c.Analytics.ZThreshold <= 0 {
		problems = append(problems, "analytics.z_threshold must be > 0")
	}
	if c.Analytics.HeroPercentile <= 0 || c.Analytics.HeroPercentile >= 1 {
		problems = append(problems, "analytics.hero_percentile must be between 0 and 1")
	}
	weightSum := c.Segmentation.MixWeight + c.Segmentation.VolumeWeight + c.Segmentation.FrequencyWeight
	if weightSum < 0.99 || weightSum > 1.01 {
		problems = append(problems, "segmentation weights must sum to 1")
	}

	switch mode {
	case "process":
		if c.Ingest.Concurrency < 1 || c.Ingest.Concurrency > 16 {
			problems = append(problems, "ingest.concurrency must be between 1 and 16")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.RateLimit <= 0 {
			problems = append(problems, "server.rate_limit must be > 0")
		}
	case "analyze", "export":
		// Store checks above cover these modes.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
