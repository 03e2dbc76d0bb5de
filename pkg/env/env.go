package env

import "os"

// Get reads an environment variable, falling back when unset or empty. Used
// for the handful of knobs (PORT, WORKER_ID) read outside the envconfig tree.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
