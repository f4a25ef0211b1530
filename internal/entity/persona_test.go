package entity

import (
	"testing"
	"time"
)

func TestHeartbeatDue(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &Persona{HeartbeatDelayMs: 60_000, LastActivity: base}

	if p.HeartbeatDue(base.Add(30 * time.Second)) {
		t.Error("due before the delay elapsed")
	}
	if !p.HeartbeatDue(base.Add(2 * time.Minute)) {
		t.Error("not due after the delay elapsed")
	}

	p.IsPaused = true
	if p.HeartbeatDue(base.Add(2 * time.Minute)) {
		t.Error("paused persona reported due")
	}
	p.IsPaused = false
	p.HeartbeatDelayMs = 0
	if p.HeartbeatDue(base.Add(2 * time.Minute)) {
		t.Error("zero delay reported due")
	}
}

func TestContextMessagesWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &Persona{
		ContextWindowHours: 24,
		Messages: []Message{
			{ID: "old", Timestamp: now.Add(-48 * time.Hour)},
			{ID: "pinned", Timestamp: now.Add(-48 * time.Hour), ContextStatus: ContextAlways},
			{ID: "hidden", Timestamp: now.Add(-time.Hour), ContextStatus: ContextNever},
			{ID: "recent", Timestamp: now.Add(-time.Hour)},
		},
	}

	got := p.ContextMessages(now)
	ids := make([]string, 0, len(got))
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	if len(ids) != 2 || ids[0] != "pinned" || ids[1] != "recent" {
		t.Errorf("context ids = %v, want [pinned recent]", ids)
	}
}

func TestContextMessagesBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &Persona{
		ContextWindowHours: 24,
		ContextBoundary:    now.Add(-30 * time.Minute),
		Messages: []Message{
			{ID: "before", Timestamp: now.Add(-time.Hour)},
			{ID: "after", Timestamp: now.Add(-10 * time.Minute)},
		},
	}
	got := p.ContextMessages(now)
	if len(got) != 1 || got[0].ID != "after" {
		t.Errorf("boundary cut = %v, want only the message after the boundary", got)
	}
}

func TestVisibleGroupsDefaultsToGeneral(t *testing.T) {
	p := &Persona{Name: "Nim"}
	got := p.VisibleGroups()
	if len(got) != 1 || got[0] != GeneralGroup {
		t.Errorf("VisibleGroups = %v, want [General]", got)
	}
}
