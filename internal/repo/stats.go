// Package repo implements the data persistence layer for OTP records and bot
// state, backed by GORM. This file provides aggregate statistics and the
// point-in-time snapshot used for backups.
package repo

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/otpwatch/go-otp-forwarder/internal/domain"
)

// Stats is an aggregate view of the store, consumed by the health checker
// and the operator status surface.
type Stats struct {
	Total     int64 `json:"total"`
	Unsent    int64 `json:"unsent"`
	Recent24h int64 `json:"recent_24h"`
	SizeBytes int64 `json:"size_bytes"`
}

// SizeMB returns the database size in megabytes.
func (st Stats) SizeMB() float64 {
	return float64(st.SizeBytes) / (1 << 20)
}

// Stats gathers record counts and the on-disk database size. Medium failures
// degrade individual fields to zero.
func (s *Store) Stats(ctx context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	if err := s.db.WithContext(ctx).Model(&domain.OTPMessage{}).Count(&st.Total).Error; err != nil {
		log.Error().Err(err).Msg("failed to count otps")
	}
	if err := s.db.WithContext(ctx).Model(&domain.OTPMessage{}).
		Where("sent_to_telegram = ?", false).Count(&st.Unsent).Error; err != nil {
		log.Error().Err(err).Msg("failed to count unsent otps")
	}
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	if err := s.db.WithContext(ctx).Model(&domain.OTPMessage{}).
		Where("created_at > ?", yesterday).Count(&st.Recent24h).Error; err != nil {
		log.Error().Err(err).Msg("failed to count recent otps")
	}
	if fi, err := os.Stat(s.path); err == nil {
		st.SizeBytes = fi.Size()
	}
	return st
}

// Snapshot writes a point-in-time consistent copy of the database to dst.
// The store lock is held for the duration, so the copy reflects a single
// moment even while writers are active, and the result is an independently
// openable SQLite file.
func (s *Store) Snapshot(ctx context.Context, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Exec("VACUUM INTO ?", dst).Error; err != nil {
		log.Error().Err(err).Str("dst", dst).Msg("failed to snapshot database")
		return err
	}
	log.Info().Str("dst", dst).Msg("database snapshot created")
	return nil
}
