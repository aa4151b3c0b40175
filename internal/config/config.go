// Package config loads the application configuration from config.yaml
// and CHLOROMAP_* environment variables, and initializes the global
// logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Input     InputConfig     `yaml:"input" mapstructure:"input"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Model     ModelConfig     `yaml:"model" mapstructure:"model"`
	Augment   AugmentConfig   `yaml:"augment" mapstructure:"augment"`
	Constants ConstantsConfig `yaml:"constants" mapstructure:"constants"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Mongo     MongoConfig     `yaml:"mongo" mapstructure:"mongo"`
	Run       RunConfig       `yaml:"run" mapstructure:"run"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// InputConfig locates the input rasters.
type InputConfig struct {
	Folder string `yaml:"folder" mapstructure:"folder"`
}

// OutputConfig configures artifact directories. Session-scoped
// subdirectories are created under the tif/png roots per run.
type OutputConfig struct {
	TIFDir        string `yaml:"tif_dir" mapstructure:"tif_dir"`
	PNGDir        string `yaml:"png_dir" mapstructure:"png_dir"`
	StatusDir     string `yaml:"status_dir" mapstructure:"status_dir"`
	KeepAugmented bool   `yaml:"keep_augmented" mapstructure:"keep_augmented"`
}

// ModelConfig locates the estimator coefficients and the shared
// sentinel substituted for non-finite and back-filled values.
type ModelConfig struct {
	CoefficientsPath string  `yaml:"coefficients_path" mapstructure:"coefficients_path"`
	Sentinel         float64 `yaml:"sentinel" mapstructure:"sentinel"`
}

// AugmentConfig configures band-count normalization. Families maps a
// satellite tag prefix to that family's native band count.
type AugmentConfig struct {
	CanonicalBands int            `yaml:"canonical_bands" mapstructure:"canonical_bands"`
	Families       map[string]int `yaml:"families" mapstructure:"families"`
}

// ConstantsConfig locates the lake constants database.
type ConstantsConfig struct {
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}

// RenderConfig fixes the heatmap value scale.
type RenderConfig struct {
	Min float64 `yaml:"min" mapstructure:"min"`
	Max float64 `yaml:"max" mapstructure:"max"`
}

// MongoConfig holds results database settings (production mode only).
type MongoConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	Database string `yaml:"database" mapstructure:"database"`
}

// RunConfig configures batch behavior.
type RunConfig struct {
	Production  bool `yaml:"production" mapstructure:"production"`
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
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
	v.SetEnvPrefix("CHLOROMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.folder", "input_tifs")
	v.SetDefault("output.tif_dir", "all_tif_out")
	v.SetDefault("output.png_dir", "all_png_out")
	v.SetDefault("output.status_dir", "session_statuses")
	v.SetDefault("output.keep_augmented", false)
	v.SetDefault("model.coefficients_path", "model_coefficients.json")
	v.SetDefault("model.sentinel", -9999.0)
	v.SetDefault("augment.canonical_bands", 9)
	v.SetDefault("augment.families", map[string]int{"sentinel": 9, "landsat": 5})
	v.SetDefault("constants.db_path", "lake_constants.db")
	v.SetDefault("render.min", 0.0)
	v.SetDefault("render.max", 60.0)
	v.SetDefault("mongo.database", "prod")
	v.SetDefault("run.production", false)
	v.SetDefault("run.concurrency", 1)
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
