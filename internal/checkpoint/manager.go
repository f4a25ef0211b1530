package checkpoint

import (
	"fmt"
	"time"

	"github.com/eidolabs/eidolon/internal/entity"
)

// Default slot counts.
const (
	DefaultAutoSlots   = 10
	DefaultManualSlots = 5
)

// Manager sits between the engine and a Storage backend: it validates
// slot indices, keeps the two save classes apart, and never mutates a
// stored snapshot on restore.
type Manager struct {
	storage     Storage
	autoSlots   int
	manualSlots int
}

// NewManager wraps a backend.
func NewManager(storage Storage, autoSlots, manualSlots int) *Manager {
	if autoSlots <= 0 {
		autoSlots = DefaultAutoSlots
	}
	if manualSlots <= 0 {
		manualSlots = DefaultManualSlots
	}
	return &Manager{storage: storage, autoSlots: autoSlots, manualSlots: manualSlots}
}

// AutoSlots reports the auto-save FIFO capacity.
func (m *Manager) AutoSlots() int { return m.autoSlots }

// ManualSlots reports the number of named slots.
func (m *Manager) ManualSlots() int { return m.manualSlots }

// LoadState reads the rolling current-state snapshot; (nil, nil) when no
// prior state exists.
func (m *Manager) LoadState() (*entity.Snapshot, error) {
	snap, err := m.storage.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return snap, nil
}

// SaveState writes the rolling current-state snapshot.
func (m *Manager) SaveState(store *entity.Store, now time.Time) error {
	snap, err := store.Snapshot(now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	if err := m.storage.Save(snap); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// AutoCheckpoint appends to the rotating auto FIFO; the backend evicts the
// oldest save past capacity.
func (m *Manager) AutoCheckpoint(store *entity.Store, now time.Time) error {
	snap, err := store.Snapshot(now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	if err := m.storage.SaveAutoCheckpoint(snap); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// ManualCheckpoint writes a named slot, overwriting any previous occupant.
func (m *Manager) ManualCheckpoint(store *entity.Store, slot int, name string, now time.Time) error {
	if slot < 0 || slot >= m.manualSlots {
		return fmt.Errorf("%w: manual slot %d (have %d)", ErrInvalidSlot, slot, m.manualSlots)
	}
	snap, err := store.Snapshot(now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	if err := m.storage.SaveManualCheckpoint(slot, name, snap); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// DeleteManual clears a named slot.
func (m *Manager) DeleteManual(slot int) error {
	if slot < 0 || slot >= m.manualSlots {
		return fmt.Errorf("%w: manual slot %d (have %d)", ErrInvalidSlot, slot, m.manualSlots)
	}
	if err := m.storage.DeleteManualCheckpoint(slot); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// List returns all stored checkpoints in combined-index order.
func (m *Manager) List() ([]Info, error) {
	infos, err := m.storage.ListCheckpoints()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return infos, nil
}

// Restore loads the chosen checkpoint and replaces the store's state
// wholesale. Other slots, and the chosen snapshot itself, are untouched.
func (m *Manager) Restore(store *entity.Store, index int) error {
	snap, err := m.storage.LoadCheckpoint(index)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	if snap == nil {
		return fmt.Errorf("%w: checkpoint %d", ErrInvalidSlot, index)
	}
	if err := store.Restore(snap); err != nil {
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return nil
}
