// Package lancer wires the lancer command line: configuration, logging,
// tracing and the world migration subcommands.
package lancer

import (
	"github.com/louisbranch/lancer-system/internal/platform/config"
)

// DefaultSystemVersion is the system version the binary was built for.
const DefaultSystemVersion = "1.0.0"

// Config holds lancer command configuration. Flags override these values.
type Config struct {
	DBPath         string   `env:"LANCER_DB_PATH" envDefault:"data/lancer-world.db"`
	SystemVersion  string   `env:"LANCER_SYSTEM_VERSION" envDefault:"1.0.0"`
	Locale         string   `env:"LANCER_LOCALE" envDefault:"en-US"`
	LogLevel       string   `env:"LANCER_LOG_LEVEL" envDefault:"info"`
	LogJSON        bool     `env:"LANCER_LOG_JSON"`
	StatusIconSets []string `env:"LANCER_STATUS_ICON_SETS" envSeparator:"," envDefault:"default"`
	OTelEndpoint   string   `env:"LANCER_OTEL_ENDPOINT"`
	OTelEnabled    bool     `env:"LANCER_OTEL_ENABLED"`
}

// ParseConfig loads Config from the process environment.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseConfigFrom loads Config from vars instead of the environment.
func parseConfigFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := config.ParseEnvFrom(&cfg, vars); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
