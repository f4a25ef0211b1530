// Package checkpoint persists full store snapshots: a bounded FIFO of
// automatic saves plus a small set of user-named manual slots, over a
// pluggable Storage backend.
package checkpoint

import (
	"errors"
	"time"

	"github.com/eidolabs/eidolon/internal/entity"
)

// Checkpoint kinds.
type Kind string

const (
	KindAuto   Kind = "auto"
	KindManual Kind = "manual"
)

// Error codes surfaced to the command surface and the bus.
const (
	CodeLoadFailed  = "STORAGE_LOAD_FAILED"
	CodeSaveFailed  = "STORAGE_SAVE_FAILED"
	CodeInvalidSlot = "ERR_INVALID_SLOT"
)

var (
	// ErrLoadFailed wraps any backend read failure.
	ErrLoadFailed = errors.New(CodeLoadFailed)
	// ErrSaveFailed wraps any backend write failure.
	ErrSaveFailed = errors.New(CodeSaveFailed)
	// ErrInvalidSlot means the referenced checkpoint index does not exist.
	ErrInvalidSlot = errors.New(CodeInvalidSlot)
)

// Info describes one stored checkpoint. Index is a position in the
// combined index space: 0..autoSlots-1 are automatic saves newest first,
// autoSlots.. are the manual slots.
type Info struct {
	Index   int       `json:"index"`
	Kind    Kind      `json:"kind"`
	Name    string    `json:"name,omitempty"`
	SavedAt time.Time `json:"savedAt"`
}

// Storage is the persistence contract. Implementations are called from a
// single execution context and need no internal locking. Load returns
// (nil, nil) when no prior state exists.
type Storage interface {
	// Load reads the rolling "current state" snapshot.
	Load() (*entity.Snapshot, error)
	// Save writes the rolling "current state" snapshot.
	Save(snap *entity.Snapshot) error

	ListCheckpoints() ([]Info, error)
	LoadCheckpoint(index int) (*entity.Snapshot, error)
	SaveAutoCheckpoint(snap *entity.Snapshot) error
	SaveManualCheckpoint(index int, name string, snap *entity.Snapshot) error
	DeleteManualCheckpoint(index int) error
}
