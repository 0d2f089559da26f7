// Package store provides the persistence backends for the emotional memory
// store: SQLite (default) and PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/emotion-memory/internal/model"
)

// Snapshot is the full persisted state, loaded once on startup.
// Memories and patterns are in insertion order.
type Snapshot struct {
	Memories     []model.MemoryEntry
	Patterns     []model.MemoryPattern
	Learning     []model.LearningMoment
	HistoryCount int
}

// Batch is one atomic write. Memories and patterns are upserted; history
// and learning records are appended.
type Batch struct {
	Memories []model.MemoryEntry
	Patterns []model.MemoryPattern
	History  []model.HistoryRecord
	Learning []model.LearningMoment
}

// Empty reports whether the batch has nothing to write.
func (b Batch) Empty() bool {
	return len(b.Memories) == 0 && len(b.Patterns) == 0 && len(b.History) == 0 && len(b.Learning) == 0
}

// Backend defines the storage interface used by the memory store.
type Backend interface {
	// Load reads every persisted record.
	Load(ctx context.Context) (*Snapshot, error)

	// Commit writes the batch in a single transaction.
	Commit(ctx context.Context, b Batch) error

	// Name identifies the backend kind ("sqlite", "postgres").
	Name() string

	// Location describes where data lives (file path or redacted URL).
	Location() string

	// Stats counts persisted rows.
	Stats(ctx context.Context) (*Stats, error)

	// Close closes the backend.
	Close() error
}

// Options configures a backend.
type Options struct {
	// Passphrase enables encryption-at-rest when non-empty.
	Passphrase string
}

// StorageError reports an I/O or serialization failure on persist or load.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
