package goPresence

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is the prefix of every environment variable read by [ConfigFromEnv].
const EnvPrefix = "PRESENCE_"

// ConfigFromEnv returns [DefaultConfig] overlaid with PRESENCE_* environment
// variables, for example PRESENCE_DEFAULTS_SIMILARITY_THRESHOLD or
// PRESENCE_RATE_LIMIT_MAX_EVIDENCE. Unset variables keep their defaults.
// Challenge keys are not read from the environment.
func ConfigFromEnv() (Config, error) {
	cfg := defaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
