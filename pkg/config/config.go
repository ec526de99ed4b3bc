package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds everything the binaries need. Precedence, lowest to
// highest: defaults, config file, environment (CENTAVO_*), flags.
type Config struct {
	DBPath     string `mapstructure:"db"`
	ListenAddr string `mapstructure:"listen"`
	DayFirst   bool   `mapstructure:"day-first"`
	LogLevel   string `mapstructure:"log-level"`
}

// Build loads configuration from an optional config file, a .env file if
// present, CENTAVO_* environment variables and the given flag set.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	_ = gotenv.Load() // .env is optional

	v := viper.New()
	v.SetDefault("db", "centavo.db")
	v.SetDefault("listen", "0.0.0.0:3000")
	v.SetDefault("day-first", true)
	v.SetDefault("log-level", "info")

	v.SetEnvPrefix("CENTAVO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
