package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotVersion guards against loading snapshots written by an
// incompatible schema.
const SnapshotVersion = 1

// Snapshot is the full serialized shape of the store: the human, every
// persona with its messages, and the job queue. Snapshots are immutable
// once written; restore reads them wholesale.
type Snapshot struct {
	Version      int        `json:"version"`
	SavedAt      time.Time  `json:"savedAt"`
	Human        *Human     `json:"human"`
	Personas     []*Persona `json:"personas"`
	Queue        *JobQueue  `json:"queue"`
	LastCeremony time.Time  `json:"lastCeremony"`
}

// Snapshot captures the store as a deep copy, so later store mutation
// cannot reach into a saved checkpoint.
func (s *Store) Snapshot(now time.Time) (*Snapshot, error) {
	snap := &Snapshot{
		Version:      SnapshotVersion,
		SavedAt:      now,
		Human:        s.Human,
		Personas:     s.Personas,
		Queue:        s.Queue,
		LastCeremony: s.LastCeremony,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	var copied Snapshot
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("copy snapshot: %w", err)
	}
	return &copied, nil
}

// Restore replaces the store's state wholesale with the snapshot's. The
// snapshot itself is deep-copied first so the caller's copy stays
// untouched. There is no partial or merge restore.
func (s *Store) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	if snap.Version > SnapshotVersion {
		return fmt.Errorf("snapshot version %d not supported", snap.Version)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	var copied Snapshot
	if err := json.Unmarshal(data, &copied); err != nil {
		return fmt.Errorf("copy snapshot: %w", err)
	}
	s.Human = copied.Human
	if s.Human == nil {
		s.Human = NewHuman()
	}
	normalizeHuman(s.Human)
	s.Personas = copied.Personas
	if s.Personas == nil {
		s.Personas = []*Persona{}
	}
	for _, p := range s.Personas {
		if p.Messages == nil {
			p.Messages = []Message{}
		}
	}
	s.Queue = copied.Queue
	if s.Queue == nil {
		s.Queue = NewJobQueue()
	}
	// A claim never survives a restart.
	for _, item := range s.Queue.Items {
		if item.State == StateProcessing {
			item.State = StatePending
		}
	}
	s.LastCeremony = copied.LastCeremony
	return nil
}

// normalizeHuman re-establishes at-rest invariants on load: group sets are
// never empty and numeric ranges hold.
func normalizeHuman(h *Human) {
	for i := range h.Facts {
		h.Facts[i].PersonaGroups = NormalizeGroups(h.Facts[i].PersonaGroups)
	}
	for i := range h.Traits {
		h.Traits[i].PersonaGroups = NormalizeGroups(h.Traits[i].PersonaGroups)
	}
	for i := range h.Topics {
		h.Topics[i].PersonaGroups = NormalizeGroups(h.Topics[i].PersonaGroups)
		h.Topics[i].ExposureCurrent = Clamp01(h.Topics[i].ExposureCurrent)
		h.Topics[i].ExposureDesired = Clamp01(h.Topics[i].ExposureDesired)
	}
	for i := range h.People {
		h.People[i].PersonaGroups = NormalizeGroups(h.People[i].PersonaGroups)
		h.People[i].ExposureCurrent = Clamp01(h.People[i].ExposureCurrent)
		h.People[i].ExposureDesired = Clamp01(h.People[i].ExposureDesired)
	}
	if h.LastSeeded == nil {
		h.LastSeeded = map[string]time.Time{}
	}
}

// ExportJSON serializes the current state for the export command.
func (s *Store) ExportJSON(now time.Time) ([]byte, error) {
	snap, err := s.Snapshot(now)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(snap, "", "  ")
}

// ImportJSON replaces the current state from exported JSON.
func (s *Store) ImportJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	return s.Restore(&snap)
}
