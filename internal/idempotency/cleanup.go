package idempotency

import (
	"log/slog"
	"time"
)

// DefaultExpiry bounds how long a cached interaction response can be
// replayed. A day comfortably covers client retry storms without letting
// the keys table grow unbounded.
const DefaultExpiry = 24 * time.Hour

// CleanupOldKeys deletes keys past their expiry and reports how many went.
func CleanupOldKeys(repo Repository, expiry time.Duration) (int64, error) {
	deleted, err := repo.DeleteOlderThan(expiry)
	if err != nil {
		slog.Error("idempotency key cleanup failed", "error", err)
		return 0, err
	}
	if deleted > 0 {
		slog.Info("expired idempotency keys removed",
			"deleted", deleted, "older_than", expiry)
	}
	return deleted, nil
}

// RunPeriodicCleanup sweeps expired keys on the given interval until
// stopChan closes. It blocks, so the caller runs it in a goroutine; one
// sweep happens immediately so a restarted server doesn't wait a full
// interval to shed a backlog.
func RunPeriodicCleanup(repo Repository, interval, expiry time.Duration, stopChan <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Errors are logged inside CleanupOldKeys; the sweep just keeps going.
	_, _ = CleanupOldKeys(repo, expiry)

	for {
		select {
		case <-ticker.C:
			_, _ = CleanupOldKeys(repo, expiry)
		case <-stopChan:
			slog.Info("idempotency cleanup stopped")
			return
		}
	}
}
