package config

import "strings"

var secretMarkers = []string{"SECRET", "TOKEN", "PASSWORD", "KEY", "CREDENTIAL"}

// Sanitize returns a copy of the config with secret-looking child
// environment values masked, for logging and display.
func Sanitize(cfg *HostConfig) *HostConfig {
	sanitized := *cfg
	if len(cfg.Child.Env) == 0 {
		return &sanitized
	}

	sanitized.Child.Env = make([]string, len(cfg.Child.Env))
	for i, kv := range cfg.Child.Env {
		key, value, ok := strings.Cut(kv, "=")
		if ok && isSecret(key) {
			kv = key + "=" + maskSecret(value)
		}
		sanitized.Child.Env[i] = kv
	}
	return &sanitized
}

func isSecret(key string) bool {
	upper := strings.ToUpper(key)
	for _, m := range secretMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
