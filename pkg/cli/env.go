package cli

import "os"

// EnvOrDefault returns the environment variable value if set, otherwise the default.
func EnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
