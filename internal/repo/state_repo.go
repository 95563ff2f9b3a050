// Package repo implements the data persistence layer for OTP records and bot
// state, backed by GORM. This file provides the generic key/value state
// table used for operator flags, operation timestamps, and the rolling error
// log. Values are serialized JSON.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/otpwatch/go-otp-forwarder/internal/domain"
)

// SetState creates or overwrites the value stored under key. It returns
// false when the value cannot be serialized or the medium fails.
func (s *Store) SetState(ctx context.Context, key string, value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to encode state value")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := domain.StateEntry{Key: key, Value: string(raw), UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to set state")
		return false
	}
	return true
}

// GetState unmarshals the value stored under key into dest and reports
// whether the key was present. dest keeps its prior (caller-supplied default)
// contents when the key is absent, the value is corrupt, or the medium fails.
func (s *Store) GetState(ctx context.Context, key string, dest any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entry domain.StateEntry
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false
	case err != nil:
		log.Error().Err(err).Str("key", key).Msg("failed to get state")
		return false
	}

	if err := json.Unmarshal([]byte(entry.Value), dest); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to decode state value")
		return false
	}
	return true
}

// DeleteState removes the entry for key and reports whether one existed.
func (s *Store) DeleteState(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Where("key = ?", key).Delete(&domain.StateEntry{})
	if res.Error != nil {
		log.Error().Err(res.Error).Str("key", key).Msg("failed to delete state")
		return false
	}
	return res.RowsAffected > 0
}

// AllState returns every state entry as raw JSON, keyed by state key.
func (s *Store) AllState(ctx context.Context) map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []domain.StateEntry
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		log.Error().Err(err).Msg("failed to list state")
		return map[string]json.RawMessage{}
	}

	out := make(map[string]json.RawMessage, len(entries))
	for _, e := range entries {
		out[e.Key] = json.RawMessage(e.Value)
	}
	return out
}
