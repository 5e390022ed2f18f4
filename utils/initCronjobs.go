package utils

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gbserver/models"
	"gbserver/store"
)

// Game records older than this are pruned by the daily job.
const recordRetention = 30 * 24 * time.Hour

// CronJobs starts the background maintenance schedule: replaying
// queued balance deltas every minute and pruning aged game records
// once a day.
func CronJobs(ledger *store.RedisBalanceLedger, db *gorm.DB, logger *zap.Logger) {
	c := cron.New()

	// Settlement deltas that failed against redis sit in an in-process
	// queue until this job lands them.
	c.AddFunc("@every 1m", func() {
		if ledger.PendingCount() == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		applied := ledger.Reconcile(ctx)
		logger.Info("ledger reconciliation run",
			zap.Int("applied", applied),
			zap.Int("still_pending", ledger.PendingCount()),
		)
	})

	// Prune aged game records and their events ("minute hour dom month dow").
	c.AddFunc("0 3 * * *", func() {
		logger.Info("pruning aged game records")
		cutoff := time.Now().Add(-recordRetention)

		expiredRecordIDs := []string{}
		db.Model(&models.GameRecord{}).
			Where("created_at <= ?", cutoff).
			Pluck("record_id", &expiredRecordIDs)

		if len(expiredRecordIDs) > 0 {
			db.Where("record_id IN ?", expiredRecordIDs).Delete(&models.GameEvent{})
		}

		result := db.Where("record_id IN ?", expiredRecordIDs).Delete(&models.GameRecord{})
		if result.Error != nil {
			logger.Error("failed to prune game records", zap.Error(result.Error))
		} else {
			logger.Info("pruned game records", zap.Int("records_deleted", int(result.RowsAffected)))
		}
	})

	c.Start()
}
