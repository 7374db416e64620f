package ports

import "time"

const (
	DefaultRateTimeout    = 5 * time.Second // Bound on a single rate lookup round trip
	DefaultMaxRetries     = 3               // Order execution attempts before permanent failure
	DefaultRetryBackoff   = 2 * time.Second // Base of the exponential retry delay
	DefaultWorkerPoolSize = 4               // Concurrent retry job handlers
	QueueDispatchInterval = time.Second     // How often due jobs move from scheduled to ready
	QueueDequeueTimeout   = time.Second     // BRPOP block duration per poll
)
