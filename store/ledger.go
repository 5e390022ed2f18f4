package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"gbserver/models"
)

const balanceKeyPrefix = "balance:"

// RedisBalanceLedger keeps participant balances in redis. A delta that
// cannot be applied is queued in-process and replayed by the
// reconciliation cron job, so a settlement is never dropped.
type RedisBalanceLedger struct {
	rdb    *redis.Client
	logger *zap.Logger

	mu      sync.Mutex
	pending []pendingDelta
}

type pendingDelta struct {
	UserID string
	Delta  float64
}

func NewRedisBalanceLedger(rdb *redis.Client, logger *zap.Logger) *RedisBalanceLedger {
	return &RedisBalanceLedger{rdb: rdb, logger: logger}
}

// AdjustBalance applies a signed delta to a participant's balance. On
// failure the delta is queued for reconciliation and an error returned
// so the caller can log it.
func (l *RedisBalanceLedger) AdjustBalance(ctx context.Context, userID string, delta float64) error {
	if err := l.rdb.IncrByFloat(ctx, balanceKeyPrefix+userID, delta).Err(); err != nil {
		l.mu.Lock()
		l.pending = append(l.pending, pendingDelta{UserID: userID, Delta: delta})
		l.mu.Unlock()
		return fmt.Errorf("balance adjustment for %s: %v: %w", userID, err, models.ErrCollaborator)
	}
	return nil
}

// Balance reads a participant's current balance. A participant without
// a balance key reads as zero.
func (l *RedisBalanceLedger) Balance(ctx context.Context, userID string) (float64, error) {
	balance, err := l.rdb.Get(ctx, balanceKeyPrefix+userID).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance read for %s: %v: %w", userID, err, models.ErrCollaborator)
	}
	return balance, nil
}

// Reconcile replays queued deltas. Deltas that fail again go back on
// the queue. Returns how many were applied.
func (l *RedisBalanceLedger) Reconcile(ctx context.Context) int {
	l.mu.Lock()
	queued := l.pending
	l.pending = nil
	l.mu.Unlock()

	applied := 0
	for _, delta := range queued {
		if err := l.rdb.IncrByFloat(ctx, balanceKeyPrefix+delta.UserID, delta.Delta).Err(); err != nil {
			l.mu.Lock()
			l.pending = append(l.pending, delta)
			l.mu.Unlock()
			l.logger.Warn("settlement retry failed",
				zap.String("userID", delta.UserID),
				zap.Float64("delta", delta.Delta),
				zap.Error(err),
			)
			continue
		}
		applied++
	}
	return applied
}

// PendingCount reports how many deltas still wait for reconciliation.
func (l *RedisBalanceLedger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
