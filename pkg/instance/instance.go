package instance

import "os"

// GetID identifies this process in logs so concurrent workers (api,
// sweep-worker, outbox-publisher replicas) can be told apart.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return "vendorpay-0"
}
