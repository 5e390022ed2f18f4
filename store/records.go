// Package store implements the durable collaborators: the postgres game
// record store and the redis balance ledger.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gbserver/models"
)

// GameRecordStore persists one record per started game plus an event
// row per vote, choice, message and phase result.
type GameRecordStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGameRecordStore(db *gorm.DB, logger *zap.Logger) *GameRecordStore {
	return &GameRecordStore{db: db, logger: logger}
}

// CreateRecord opens a durable record for a starting game and returns
// its reference.
func (s *GameRecordStore) CreateRecord(ctx context.Context, participants []string) (string, error) {
	record := models.GameRecord{
		RecordID:  uuid.New().String(),
		PlayerIDs: strings.Join(participants, ","),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("create game record: %v: %w", err, models.ErrCollaborator)
	}
	return record.RecordID, nil
}

// AppendEvent adds one event to a game record.
func (s *GameRecordStore) AppendEvent(ctx context.Context, recordRef string, round int, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	event := models.GameEvent{
		RecordID: recordRef,
		Round:    round,
		Type:     eventType,
		Payload:  string(body),
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("append game event: %v: %w", err, models.ErrCollaborator)
	}
	return nil
}

// ReadRecord returns a record and its events in append order.
func (s *GameRecordStore) ReadRecord(ctx context.Context, recordRef string) (*models.GameRecord, []models.GameEvent, error) {
	var record models.GameRecord
	if err := s.db.WithContext(ctx).Where("record_id = ?", recordRef).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, fmt.Errorf("record %s: %w", recordRef, models.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("read game record: %v: %w", err, models.ErrCollaborator)
	}

	var events []models.GameEvent
	if err := s.db.WithContext(ctx).Where("record_id = ?", recordRef).Order("id asc").Find(&events).Error; err != nil {
		return nil, nil, fmt.Errorf("read game events: %v: %w", err, models.ErrCollaborator)
	}
	return &record, events, nil
}

// ListUserRecords returns the records a participant took part in,
// newest first. Feeds the history endpoint.
func (s *GameRecordStore) ListUserRecords(ctx context.Context, userID string) ([]models.GameRecord, error) {
	var records []models.GameRecord
	err := s.db.WithContext(ctx).
		Where("player_ids LIKE ?", "%"+userID+"%").
		Order("created_at desc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list game records: %v: %w", err, models.ErrCollaborator)
	}
	return records, nil
}
