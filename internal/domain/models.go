// Package domain defines the persistence models for OTP messages and bot
// state. These types are mapped with GORM and form the core data layer of
// the forwarder.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Well-known bot state keys. The operator control surface and the poll loop
// communicate exclusively through these entries.
const (
	StateMonitoringEnabled = "monitoring_enabled"
	StateRestartRequested  = "restart_requested"
	StateForceFetch        = "force_fetch_requested"
	StateLastLoginTime     = "last_login_time"
	StateLastFetchTime     = "last_fetch_time"
	StateRecentErrors      = "recent_errors"
)

// MinTextLen is the shortest message body considered a real OTP record.
// Anything at or below this length is treated as scraping noise.
const MinTextLen = 3

// OTPMessage represents a single OTP notification scraped from the upstream
// site. The ID is a content hash, so a logically identical message always
// maps to the same primary key; that uniqueness is what gives the store its
// at-most-once dedup guarantee.
//
// Fields:
//   - ID: content hash of (timestamp, sender, text); primary key.
//   - Timestamp: origin-reported time, preserved verbatim even if unparsable.
//   - Sender: originating address or number, free text.
//   - Text: message body.
//   - Service: optional upstream service label.
//   - CreatedAt: ingestion time, set by the store, monotonic per insert.
//   - SentToTelegram: false at creation, flipped exactly once on delivery.
type OTPMessage struct {
	ID             string    `json:"id"               gorm:"type:char(16);primaryKey"`
	Timestamp      string    `json:"timestamp"        gorm:"type:varchar(64);not null;index:idx_otps_timestamp"`
	Sender         string    `json:"sender"           gorm:"type:varchar(128);not null"`
	Text           string    `json:"text"             gorm:"type:text;not null"`
	Service        string    `json:"service"          gorm:"type:varchar(128)"`
	CreatedAt      time.Time `json:"created_at"       gorm:"index:idx_otps_created_at"`
	SentToTelegram bool      `json:"sent_to_telegram" gorm:"not null;default:false;index:idx_otps_sent"`
}

// TableName returns the database table name for OTPMessage.
func (OTPMessage) TableName() string { return "otps" }

// StateEntry is one row of the generic key/value bot state table. Values are
// stored as serialized JSON so callers can persist arbitrary structures
// (flags, timestamps, the rolling error log).
type StateEntry struct {
	Key       string    `json:"key"        gorm:"type:varchar(128);primaryKey"`
	Value     string    `json:"value"      gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for StateEntry.
func (StateEntry) TableName() string { return "bot_state" }

// SMSCandidate is a raw record produced by the fetch collaborator before
// deduplication. Service may be empty; empty bodies have already been
// filtered by the collaborator.
type SMSCandidate struct {
	Timestamp string `json:"timestamp"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Service   string `json:"service,omitempty"`
}

// Valid reports whether the candidate carries enough content to be treated
// as a record rather than noise.
func (c SMSCandidate) Valid() bool {
	return len(strings.TrimSpace(c.Text)) > MinTextLen
}

// Message converts the candidate into a persistable OTPMessage with its
// deterministic content-hash ID. CreatedAt is left zero; the store owns it.
func (c SMSCandidate) Message() OTPMessage {
	return OTPMessage{
		ID:        MessageID(c.Timestamp, c.Sender, c.Text),
		Timestamp: c.Timestamp,
		Sender:    c.Sender,
		Text:      c.Text,
		Service:   c.Service,
	}
}

// MessageID derives the stable record identifier from the message content.
// The digest is truncated to 16 hex characters, which is collision-resistant
// enough for dedup over a bounded retention window.
func MessageID(timestamp, sender, text string) string {
	sum := sha256.Sum256([]byte(sender + "_" + timestamp + "_" + text))
	return hex.EncodeToString(sum[:])[:16]
}

// ForceFetchRequest is the state value an operator writes under the
// force_fetch_requested key to trigger an immediate poll cycle.
type ForceFetchRequest struct {
	RequestedBy string    `json:"requested_by"`
	Timestamp   time.Time `json:"timestamp"`
}

// ErrorRecord is one entry of the rolling error log kept under the
// recent_errors state key.
type ErrorRecord struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
	Stack     string    `json:"stack,omitempty"`
}
