package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gbserver/auth"
	"gbserver/store"
)

// Balance returns the caller's current ledger balance.
func Balance(ledger *store.RedisBalanceLedger, verifier auth.Verifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := verifier.Verify(c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		balance, err := ledger.Balance(c.Request.Context(), userID)
		if err != nil {
			logger.Error("balance read failed", zap.String("userID", userID), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ledger unavailable"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"userId": userID, "balance": balance})
	}
}

// History lists the caller's past games with their recorded events.
func History(records *store.GameRecordStore, verifier auth.Verifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := verifier.Verify(c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		list, err := records.ListUserRecords(c.Request.Context(), userID)
		if err != nil {
			logger.Error("history read failed", zap.String("userID", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read history"})
			return
		}

		games := make([]gin.H, 0, len(list))
		for _, record := range list {
			_, events, err := records.ReadRecord(c.Request.Context(), record.RecordID)
			if err != nil {
				logger.Warn("skipping unreadable record", zap.String("recordID", record.RecordID), zap.Error(err))
				continue
			}
			games = append(games, gin.H{
				"recordId":  record.RecordID,
				"playerIds": record.PlayerIDs,
				"createdAt": record.CreatedAt,
				"events":    events,
			})
		}

		c.JSON(http.StatusOK, gin.H{"games": games})
	}
}
