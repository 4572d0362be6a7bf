package auth

import (
	"context"
	"time"

	"github.com/prodtrack/prodtrack-api/internal/logging"
)

// ResetTokenJanitor periodically clears reset tokens that have expired.
// Expired tokens are already unusable; this only keeps the table tidy.
type ResetTokenJanitor struct {
	users    UserStore
	interval time.Duration
	logger   *logging.Logger
	now      func() time.Time
}

func NewResetTokenJanitor(users UserStore, interval time.Duration, logger *logging.Logger) *ResetTokenJanitor {
	return &ResetTokenJanitor{
		users:    users,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled. A non-positive interval
// disables the janitor.
func (j *ResetTokenJanitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass and returns how many tokens were cleared.
func (j *ResetTokenJanitor) Sweep(ctx context.Context) int64 {
	n, err := j.users.ClearExpiredResetTokens(ctx, j.now())
	if err != nil {
		j.logger.Warn("failed to clear expired reset tokens", "error", err)
		return 0
	}
	if n > 0 {
		j.logger.Info("cleared expired reset tokens", "count", n)
	}
	return n
}
