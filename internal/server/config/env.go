package config

import (
	"strings"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "LOVASSY_"

// parseEnv overlays LOVASSY_* variables from environ. Unset variables leave
// the current value alone.
func parseEnv(cfg *Config, environ []string) error {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, envPrefix) {
			vars[k] = v
		}
	}

	return env.ParseWithOptions(cfg, env.Options{
		Prefix:      envPrefix,
		Environment: vars,
	})
}
