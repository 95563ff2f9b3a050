// Package repo implements the data persistence layer for OTP records and bot
// state, backed by GORM. This file defines the Store handle shared by the
// orchestrator, the error tracker, and the health checker.
package repo

import (
	"sync"
	"time"

	"gorm.io/gorm"
)

// InsertOutcome is the tagged result of an OTP insert attempt. Callers branch
// on data instead of caught exceptions: a duplicate is a defined outcome, not
// a failure.
type InsertOutcome int

const (
	// Inserted means the record was newly stored.
	Inserted InsertOutcome = iota
	// Duplicate means a record with the same ID already exists; nothing was written.
	Duplicate
	// StorageError means the backing medium failed; the caller must treat
	// this as "could not confirm", not "definitely failed".
	StorageError
)

// String returns the outcome name for logs.
func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	case StorageError:
		return "storage_error"
	default:
		return "unknown"
	}
}

// Store is the durable, deduplicating record store. A single mutex serializes
// every read-modify-write span against the backing medium; the existence
// check inside InsertOTP is atomic with respect to all other callers, which
// is the mechanism behind the at-most-once dedup guarantee.
//
// Construct exactly one Store per process and pass it by reference to the
// components that need it.
type Store struct {
	db   *gorm.DB
	path string

	mu sync.Mutex

	// lastCreated enforces strictly monotonic CreatedAt per insert so that
	// "oldest unsent first" is a total order even within one poll cycle.
	lastCreated time.Time
}

// New wraps an open database handle. path is the on-disk location of the
// SQLite file, used for size statistics.
func New(db *gorm.DB, path string) *Store {
	return &Store{db: db, path: path}
}

// nextCreatedAt returns a UTC timestamp strictly after every previously
// issued one. Callers must hold s.mu.
func (s *Store) nextCreatedAt() time.Time {
	now := time.Now().UTC()
	if !now.After(s.lastCreated) {
		now = s.lastCreated.Add(time.Microsecond)
	}
	s.lastCreated = now
	return now
}
