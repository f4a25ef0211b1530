package extraction

import (
	"reflect"
	"testing"
	"time"

	"github.com/eidolabs/eidolon/internal/entity"
)

func TestParseCandidates(t *testing.T) {
	v := map[string]any{
		"candidates": []any{
			map[string]any{"name": "tea", "description": "drinks green tea", "sentiment": 0.5},
			map[string]any{"name": "  ", "description": "nameless"},
			map[string]any{"name": "hiking", "sentiment": 5.0},
		},
	}
	got := ParseCandidates(v)
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2 (blank name dropped)", len(got))
	}
	if got[0].Name != "tea" || got[0].Sentiment != 0.5 {
		t.Errorf("first candidate = %+v", got[0])
	}
	if got[1].Sentiment != 1 {
		t.Errorf("sentiment = %v, want clamped to 1", got[1].Sentiment)
	}
	if ParseCandidates("not an object") != nil {
		t.Error("non-object input produced candidates")
	}
}

func TestParseMatch(t *testing.T) {
	if id, ok := ParseMatch(map[string]any{"id": "abc"}); !ok || id != "abc" {
		t.Errorf("ParseMatch = (%q, %v), want (abc, true)", id, ok)
	}
	if id, ok := ParseMatch(map[string]any{"id": "NEW"}); !ok || id != MatchNew {
		t.Errorf("ParseMatch(NEW) = (%q, %v), want (%s, true)", id, ok, MatchNew)
	}
	if _, ok := ParseMatch(map[string]any{"id": "  "}); ok {
		t.Error("blank id parsed as match")
	}
}

func TestParseUpdate(t *testing.T) {
	f, ok := ParseUpdate(map[string]any{
		"name": "tea", "description": "green tea", "sentiment": -2.0, "exposureDesired": 0.7,
	})
	if !ok {
		t.Fatal("ParseUpdate failed")
	}
	if f.Sentiment != -1 {
		t.Errorf("sentiment = %v, want clamped to -1", f.Sentiment)
	}
	if f.ExposureDesired != 0.7 {
		t.Errorf("exposureDesired = %v, want 0.7", f.ExposureDesired)
	}
	if _, ok := ParseUpdate(map[string]any{"description": "no name"}); ok {
		t.Error("update without a name parsed")
	}
}

func TestChainDataRoundTrip(t *testing.T) {
	p := &entity.Persona{ID: "p1", GroupPrimary: "Fellowship"}
	cand := Candidate{Name: "tea", Description: "green tea", Sentiment: 0.3}
	req := MatchRequest(p, TypeFact, cand, nil, "the window", false)

	dtype, gotCand, window, matchedID := ChainData(req)
	if dtype != TypeFact || window != "the window" || matchedID != "" {
		t.Errorf("ChainData = (%q, _, %q, %q)", dtype, window, matchedID)
	}
	if !reflect.DeepEqual(gotCand, cand) {
		t.Errorf("candidate = %+v, want %+v", gotCand, cand)
	}

	upd := UpdateRequest(p, TypeFact, cand, "item-7", "existing", "the window", true)
	_, _, _, matchedID = ChainData(upd)
	if matchedID != "item-7" {
		t.Errorf("matchedID = %q, want item-7", matchedID)
	}
	if !upd.Ceremony {
		t.Error("ceremony flag not carried")
	}
}

func TestScanRequestsPriority(t *testing.T) {
	p := &entity.Persona{ID: "p1"}
	batch := Batch{Analyze: []entity.Message{{ID: "m", Content: "hi"}}}

	live := ScanRequests(p, batch, MessageTypes, false)
	if len(live) != len(MessageTypes) {
		t.Fatalf("scan jobs = %d, want %d", len(live), len(MessageTypes))
	}
	if live[0].Priority != entity.PriorityNormal {
		t.Errorf("live scan priority = %v, want normal", live[0].Priority)
	}

	nightly := ScanRequests(p, batch, CeremonyTypes, true)
	if nightly[0].Priority != entity.PriorityLow || !nightly[0].Ceremony {
		t.Errorf("ceremony scan = priority %v ceremony %v", nightly[0].Priority, nightly[0].Ceremony)
	}
}

func TestApplyUpdateNewItemTakesPersonaGroup(t *testing.T) {
	s := entity.NewStore()
	p := s.AddPersona(&entity.Persona{Name: "Gale", GroupPrimary: "Fellowship"})

	id, err := ApplyUpdate(s, p, TypeFact, MatchNew, UpdateFields{Name: "likes tea", Sentiment: 0.4})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(s.Human.Facts) != 1 {
		t.Fatalf("facts = %d, want 1", len(s.Human.Facts))
	}
	f := s.Human.Facts[0]
	if f.ID != id {
		t.Errorf("returned id %q does not match stored %q", id, f.ID)
	}
	if !reflect.DeepEqual(f.PersonaGroups, []string{"Fellowship"}) {
		t.Errorf("groups = %v, want [Fellowship]", f.PersonaGroups)
	}
	if f.LearnedBy != p.ID {
		t.Errorf("learnedBy = %q, want %q", f.LearnedBy, p.ID)
	}
}

func TestApplyUpdateExistingItemMergesGroups(t *testing.T) {
	s := entity.NewStore()
	existing := s.UpsertFact(entity.Fact{DataItem: entity.DataItem{
		Name: "likes tea", PersonaGroups: []string{"Work"},
	}})
	p := s.AddPersona(&entity.Persona{Name: "Gale", GroupPrimary: "Fellowship"})

	id, err := ApplyUpdate(s, p, TypeFact, existing.ID, UpdateFields{Name: "likes tea", Description: "green"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if id != existing.ID {
		t.Errorf("update created a new item: %q vs %q", id, existing.ID)
	}
	got := s.Human.Facts[0].PersonaGroups
	if !reflect.DeepEqual(got, []string{"Work", "Fellowship"}) {
		t.Errorf("merged groups = %v, want [Work Fellowship]", got)
	}
}

func TestApplyUpdateEiLeavesGroupsUntouched(t *testing.T) {
	s := entity.NewStore()
	existing := s.UpsertFact(entity.Fact{DataItem: entity.DataItem{
		Name: "likes tea", PersonaGroups: []string{"Fellowship"},
	}})
	ei := s.AddPersona(&entity.Persona{Name: entity.EiName})

	if _, err := ApplyUpdate(s, ei, TypeFact, existing.ID, UpdateFields{Name: "likes tea"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got := s.Human.Facts[0].PersonaGroups
	if !reflect.DeepEqual(got, []string{"Fellowship"}) {
		t.Errorf("groups after Ei update = %v, want unchanged [Fellowship]", got)
	}
}

func TestApplyUpdateStaleMatchCreatesNew(t *testing.T) {
	s := entity.NewStore()
	p := s.AddPersona(&entity.Persona{Name: "Gale", GroupPrimary: "Fellowship"})

	// The matched item was deleted between the match and update steps.
	if _, err := ApplyUpdate(s, p, TypeTopic, "gone-id", UpdateFields{Name: "sailing", ExposureDesired: 0.6}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(s.Human.Topics) != 1 {
		t.Fatalf("topics = %d, want 1", len(s.Human.Topics))
	}
	if s.Human.Topics[0].ExposureDesired != 0.6 {
		t.Errorf("exposureDesired = %v, want 0.6", s.Human.Topics[0].ExposureDesired)
	}
}

func TestApplyUpdateUnknownType(t *testing.T) {
	s := entity.NewStore()
	if _, err := ApplyUpdate(s, nil, "mystery", MatchNew, UpdateFields{Name: "x"}); err == nil {
		t.Error("unknown data type accepted")
	}
}

func TestApplyQuoteCandidatesDedupes(t *testing.T) {
	s := entity.NewStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cands := []Candidate{
		{Name: "human", Description: "I never feed the ducks"},
		{Name: "human", Description: "I never feed the ducks"},
		{Name: "human", Description: "   "},
	}
	if added := ApplyQuoteCandidates(s, cands, now); added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if len(s.Human.Quotes) != 1 {
		t.Fatalf("quotes = %d, want 1", len(s.Human.Quotes))
	}
	q := s.Human.Quotes[0]
	if q.Provenance != entity.QuoteFromExtraction {
		t.Errorf("provenance = %q, want extraction", q.Provenance)
	}

	// A second pass over the same candidates adds nothing.
	if added := ApplyQuoteCandidates(s, cands, now); added != 0 {
		t.Errorf("second pass added = %d, want 0", added)
	}
}

func TestRefTextForNewAndMatched(t *testing.T) {
	s := entity.NewStore()
	f := s.UpsertFact(entity.Fact{DataItem: entity.DataItem{Name: "likes tea", Description: "green"}})
	ei := s.AddPersona(&entity.Persona{Name: entity.EiName})

	if got := RefText(s, ei, TypeFact, MatchNew); got == "" {
		t.Error("RefText for new item is empty")
	}
	matched := RefText(s, ei, TypeFact, f.ID)
	if matched == RefText(s, ei, TypeFact, MatchNew) {
		t.Error("matched RefText fell back to the new-item placeholder")
	}
}
