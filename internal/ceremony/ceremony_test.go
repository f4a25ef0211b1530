package ceremony

import (
	"testing"
	"time"

	"github.com/eidolabs/eidolon/internal/entity"
	"github.com/eidolabs/eidolon/internal/extraction"
)

func ceremonyStore(now time.Time) (*entity.Store, *entity.Persona) {
	s := entity.NewStore()
	p := s.AddPersona(&entity.Persona{
		Name: "Gale",
		Messages: []entity.Message{
			{ID: "m1", Role: entity.RoleHuman, Content: "went climbing today", Timestamp: now.Add(-time.Hour)},
		},
	})
	return s, p
}

func TestShouldStartGating(t *testing.T) {
	now := time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)

	o := New(7, 0.15, "03:00")
	if !o.ShouldStart(now, yesterday, true) {
		t.Error("due ceremony with empty queue did not start")
	}
	if o.ShouldStart(now, yesterday, false) {
		t.Error("started with a non-empty queue")
	}
	if o.ShouldStart(now, now, true) {
		t.Error("started twice on the same day")
	}

	o.phase = PhaseExposure
	if o.ShouldStart(now, yesterday, true) {
		t.Error("started while already running")
	}
}

func TestShouldStartArmedOverridesClock(t *testing.T) {
	now := time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC) // before 03:00
	o := New(7, 0.15, "03:00")
	if o.ShouldStart(now, now.Add(-24*time.Hour), true) {
		t.Fatal("started before the time-of-day mark")
	}
	o.Arm()
	if !o.ShouldStart(now, now.Add(-24*time.Hour), true) {
		t.Error("armed ceremony did not start")
	}
}

func TestDueByClock(t *testing.T) {
	last := time.Date(2025, 6, 1, 3, 5, 0, 0, time.UTC)
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"same day", time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC), false},
		{"next day before mark", time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC), false},
		{"next day after mark", time.Date(2025, 6, 2, 3, 30, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DueByClock(tt.now, last, "03:00"); got != tt.want {
				t.Errorf("DueByClock(%s) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestBeginEnqueuesDetailScansAndBumpsExposure(t *testing.T) {
	now := time.Date(2025, 6, 2, 3, 30, 0, 0, time.UTC)
	s, p := ceremonyStore(now)
	p.Topics = []entity.PersonaTopic{{
		ID: "t1", Name: "climbing",
		Exposure:    entity.Exposure{ExposureCurrent: 0.3},
		LastUpdated: now.Add(-24 * time.Hour),
	}}

	var enqueued []*entity.LLMRequest
	enqueue := func(req *entity.LLMRequest) { enqueued = append(enqueued, req) }

	o := New(7, 0.15, "03:00")
	o.Begin(s, enqueue, 8000, now)

	if o.Phase() != PhaseExposure {
		t.Fatalf("phase = %s, want exposure", o.Phase())
	}
	if len(enqueued) != len(extraction.CeremonyTypes) {
		t.Errorf("scan jobs = %d, want %d (all types including trait and quote)",
			len(enqueued), len(extraction.CeremonyTypes))
	}
	for _, req := range enqueued {
		if !req.Ceremony || req.Step != entity.StepScan {
			t.Errorf("job = step %s ceremony %v", req.Step, req.Ceremony)
		}
	}
	if got := p.Topics[0].ExposureCurrent; got != 0.4 {
		t.Errorf("exposure after bump = %v, want 0.4", got)
	}
}

func TestPhaseAdvanceThroughCompletion(t *testing.T) {
	now := time.Date(2025, 6, 2, 3, 30, 0, 0, time.UTC)
	s, p := ceremonyStore(now)

	var enqueued []*entity.LLMRequest
	enqueue := func(req *entity.LLMRequest) { enqueued = append(enqueued, req) }

	o := New(7, 0.15, "03:00")
	o.Begin(s, enqueue, 8000, now)
	scans := len(enqueued)
	if scans == 0 {
		t.Fatal("no scan jobs enqueued")
	}

	// Finish every scan. The persona has no topics, so Expire has nothing
	// to do and the machine lands on Explore.
	for i := 0; i < scans; i++ {
		o.JobFinished(s, enqueue, now)
	}
	if o.Phase() != PhaseExplore {
		t.Fatalf("phase after scans = %s, want explore", o.Phase())
	}
	explores := enqueued[scans:]
	if len(explores) != 1 || explores[0].Step != entity.StepCeremonyExplore {
		t.Fatalf("explore jobs = %v", explores)
	}

	o.JobFinished(s, enqueue, now)
	if o.Phase() != PhaseIdle {
		t.Errorf("phase after explore = %s, want idle", o.Phase())
	}
	if !s.LastCeremony.Equal(now) {
		t.Errorf("LastCeremony = %s, want %s", s.LastCeremony, now)
	}
	_ = p
}

func TestExpirePhaseRunsWithTopics(t *testing.T) {
	now := time.Date(2025, 6, 2, 3, 30, 0, 0, time.UTC)
	s, p := ceremonyStore(now)
	p.Topics = []entity.PersonaTopic{{ID: "t1", Name: "climbing"}}

	var enqueued []*entity.LLMRequest
	enqueue := func(req *entity.LLMRequest) { enqueued = append(enqueued, req) }

	o := New(7, 0.15, "03:00")
	o.Begin(s, enqueue, 8000, now)
	scans := len(enqueued)
	for i := 0; i < scans; i++ {
		o.JobFinished(s, enqueue, now)
	}
	if o.Phase() != PhaseExpire {
		t.Fatalf("phase = %s, want expire", o.Phase())
	}
	if got := enqueued[scans]; got.Step != entity.StepCeremonyExpire {
		t.Errorf("expire job step = %s", got.Step)
	}
}

func TestDecayPhaseTouchesAllExposures(t *testing.T) {
	now := time.Date(2025, 6, 2, 3, 30, 0, 0, time.UTC)
	s, p := ceremonyStore(now)
	s.Human.Topics = []entity.Topic{{
		DataItem: entity.DataItem{ID: "ht", Name: "gardening", LastUpdated: now.Add(-48 * time.Hour)},
		Exposure: entity.Exposure{ExposureCurrent: 0.5, ExposureDesired: 0.5},
	}}
	s.Human.People = []entity.Person{{
		DataItem: entity.DataItem{ID: "hp", Name: "Sam", LastUpdated: now.Add(-48 * time.Hour)},
		Exposure: entity.Exposure{ExposureCurrent: 0.5},
	}}
	p.Topics = []entity.PersonaTopic{{
		ID: "pt", Name: "climbing",
		Exposure:    entity.Exposure{ExposureCurrent: 0.5},
		LastUpdated: now.Add(-48 * time.Hour),
	}}

	o := New(7, 0.15, "03:00")
	o.runDecay(s, now)

	if got := s.Human.Topics[0].ExposureCurrent; got >= 0.5 {
		t.Errorf("human topic exposure = %v, want decayed below 0.5", got)
	}
	if got := s.Human.People[0].ExposureCurrent; got >= 0.5 {
		t.Errorf("person exposure = %v, want decayed below 0.5", got)
	}
	if got := p.Topics[0].ExposureCurrent; got >= 0.5 {
		t.Errorf("persona topic exposure = %v, want decayed below 0.5", got)
	}
}

func TestApplyExpire(t *testing.T) {
	p := &entity.Persona{Topics: []entity.PersonaTopic{
		{ID: "t1", Name: "climbing"},
		{ID: "t2", Name: "sailing"},
	}}
	n := ApplyExpire(p, map[string]any{"expired": []any{"t1", "missing"}})
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
	if len(p.Topics) != 1 || p.Topics[0].ID != "t2" {
		t.Errorf("topics after expire = %v", p.Topics)
	}
	if got := ApplyExpire(p, "garbage"); got != 0 {
		t.Errorf("garbage input expired %d", got)
	}
}

func TestApplyExploreRespectsCapacity(t *testing.T) {
	now := time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC)
	p := &entity.Persona{Topics: []entity.PersonaTopic{{ID: "t1", Name: "climbing"}}}
	v := map[string]any{"topics": []any{
		map[string]any{"name": "sailing", "description": "boats", "exposureDesired": 0.8},
		map[string]any{"name": "climbing"}, // duplicate name skipped
		map[string]any{"name": "pottery"},
		map[string]any{"name": "chess"},
	}}

	n := ApplyExplore(p, v, 3, now)
	if n != 2 {
		t.Errorf("added = %d, want 2 (capacity 3, one existing, duplicate skipped)", n)
	}
	if len(p.Topics) != 3 {
		t.Errorf("topics = %d, want 3", len(p.Topics))
	}
	if p.Topics[1].ExposureDesired != 0.8 {
		t.Errorf("exposureDesired = %v, want 0.8", p.Topics[1].ExposureDesired)
	}
}

func TestPhaseNames(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseIdle, "idle"},
		{PhaseExposure, "exposure"},
		{PhaseDecay, "decay"},
		{PhaseExpire, "expire"},
		{PhaseExplore, "explore"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
	// The decay curve is a function, not a phase; both names must stay
	// usable side by side.
	if got := Decay(0.5, 24, DefaultDecayRate); got >= 0.5 {
		t.Errorf("Decay(0.5, 24h) = %v, want < 0.5", got)
	}
}
