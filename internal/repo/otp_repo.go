// Package repo implements the data persistence layer for OTP records and bot
// state, backed by GORM. This file provides the OTP record operations.
//
// Failure semantics: any medium-level failure is caught here at the operation
// boundary, logged, and converted to a safe default (false/0/empty) rather
// than propagated. Callers treat an empty result as "could not confirm", with
// the explicit exception of Duplicate, which is a defined outcome.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/otpwatch/go-otp-forwarder/internal/domain"
)

// InsertOTP stores a new OTP record unless one with the same ID already
// exists. The existence check and the insert happen under the store lock, so
// concurrent callers cannot both observe "absent" for the same ID.
func (s *Store) InsertOTP(ctx context.Context, msg domain.OTPMessage) InsertOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing domain.OTPMessage
	err := s.db.WithContext(ctx).Select("id").Where("id = ?", msg.ID).First(&existing).Error
	switch {
	case err == nil:
		log.Debug().Str("otp_id", msg.ID).Msg("otp already exists")
		return Duplicate
	case !errors.Is(err, gorm.ErrRecordNotFound):
		log.Error().Err(err).Str("otp_id", msg.ID).Msg("failed to check otp existence")
		return StorageError
	}

	msg.CreatedAt = s.nextCreatedAt()
	msg.SentToTelegram = false
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		log.Error().Err(err).Str("otp_id", msg.ID).Msg("failed to store otp")
		return StorageError
	}

	log.Info().Str("otp_id", msg.ID).Str("sender", msg.Sender).Msg("otp stored")
	return Inserted
}

// ListUnsent returns every record not yet delivered, oldest first. Delivery
// order follows ingestion order, so the longest-waiting record goes out
// first.
func (s *Store) ListUnsent(ctx context.Context) []domain.OTPMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.OTPMessage
	err := s.db.WithContext(ctx).
		Where("sent_to_telegram = ?", false).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		log.Error().Err(err).Msg("failed to list unsent otps")
		return nil
	}
	return out
}

// MarkSent flips the delivery flag for id. It returns true when a matching
// record existed, false when id is unknown or the medium failed.
func (s *Store) MarkSent(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).
		Model(&domain.OTPMessage{}).
		Where("id = ?", id).
		Update("sent_to_telegram", true)
	if res.Error != nil {
		log.Error().Err(res.Error).Str("otp_id", id).Msg("failed to mark otp sent")
		return false
	}
	if res.RowsAffected == 0 {
		log.Warn().Str("otp_id", id).Msg("otp not found for marking as sent")
		return false
	}
	return true
}

// ListRecent returns at most limit records, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) []domain.OTPMessage {
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.OTPMessage
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		log.Error().Err(err).Msg("failed to list recent otps")
		return nil
	}
	return out
}

// Latest returns the most recently ingested record, or nil when the store is
// empty.
func (s *Store) Latest(ctx context.Context) *domain.OTPMessage {
	recent := s.ListRecent(ctx, 1)
	if len(recent) == 0 {
		return nil
	}
	return &recent[0]
}

// PurgeOlderThan deletes records whose CreatedAt is strictly older than
// now-age and returns the number removed. Records exactly at the cutoff are
// retained.
func (s *Store) PurgeOlderThan(ctx context.Context, age time.Duration) int64 {
	cutoff := time.Now().UTC().Add(-age)

	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.OTPMessage{})
	if res.Error != nil {
		log.Error().Err(res.Error).Msg("failed to purge old otps")
		return 0
	}
	if res.RowsAffected > 0 {
		log.Info().Int64("deleted", res.RowsAffected).Dur("age", age).Msg("purged old otps")
	}
	return res.RowsAffected
}

// Count returns the total number of stored records.
func (s *Store) Count(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	if err := s.db.WithContext(ctx).Model(&domain.OTPMessage{}).Count(&total).Error; err != nil {
		log.Error().Err(err).Msg("failed to count otps")
		return 0
	}
	return total
}
