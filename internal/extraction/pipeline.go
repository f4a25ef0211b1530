// Package extraction builds the scan, match, and update job chains that
// turn conversation text into canonical human data, and the chunker that
// keeps any single prompt inside a model's token budget.
package extraction

import (
	"fmt"
	"strings"
	"time"

	"github.com/eidolabs/eidolon/internal/entity"
)

// Candidate is one item proposed by a scan step.
type Candidate struct {
	Name        string
	Description string
	Sentiment   float64
}

// ItemRef is the stripped (id, name, description) view of an existing item
// shown to the match step.
type ItemRef struct {
	ID          string
	Name        string
	Description string
}

// UpdateFields is the final field set produced by an update step.
type UpdateFields struct {
	Name            string
	Description     string
	Sentiment       float64
	ExposureDesired float64
}

// Data bag keys carried through the chain.
const (
	keyDataType    = "dataType"
	keyName        = "name"
	keyDescription = "description"
	keySentiment   = "sentiment"
	keyWindow      = "window"
	keyMatchedID   = "matchedId"
)

// MatchNew is the match-step answer meaning "no existing item".
const MatchNew = "new"

// ScanRequests builds one scan job per requested data type over a single
// batch. The formatted analyze window rides along in the data bag so the
// later update step can reuse it without refetching.
func ScanRequests(p *entity.Persona, batch Batch, types []string, ceremony bool) []*entity.LLMRequest {
	contextText := FormatWindow(batch.Context)
	analyzeText := FormatWindow(batch.Analyze)
	priority := entity.PriorityLow
	if !ceremony {
		priority = entity.PriorityNormal
	}

	reqs := make([]*entity.LLMRequest, 0, len(types))
	for _, dtype := range types {
		reqs = append(reqs, &entity.LLMRequest{
			Type:      entity.RequestJSON,
			Priority:  priority,
			Step:      entity.StepScan,
			Prompt:    fmt.Sprintf(scanPrompt, dtype, contextText, analyzeText),
			PersonaID: p.ID,
			Ceremony:  ceremony,
			Data: map[string]any{
				keyDataType: dtype,
				keyWindow:   analyzeText,
			},
		})
	}
	return reqs
}

// MatchRequest builds the second step: one candidate against the stripped
// list of existing items.
func MatchRequest(p *entity.Persona, dtype string, cand Candidate, existing []ItemRef, window string, ceremony bool) *entity.LLMRequest {
	return &entity.LLMRequest{
		Type:      entity.RequestJSON,
		Priority:  entity.PriorityLow,
		Step:      entity.StepMatch,
		Prompt:    fmt.Sprintf(matchPrompt, dtype, cand.Name, cand.Description, FormatItemRefs(existing)),
		PersonaID: p.ID,
		Ceremony:  ceremony,
		Data: map[string]any{
			keyDataType:    dtype,
			keyName:        cand.Name,
			keyDescription: cand.Description,
			keySentiment:   cand.Sentiment,
			keyWindow:      window,
		},
	}
}

// UpdateRequest builds the third step: produce final field values for a
// new or matched item.
func UpdateRequest(p *entity.Persona, dtype string, cand Candidate, matchedID, existingText, window string, ceremony bool) *entity.LLMRequest {
	return &entity.LLMRequest{
		Type:      entity.RequestJSON,
		Priority:  entity.PriorityLow,
		Step:      entity.StepUpdate,
		Prompt:    fmt.Sprintf(updatePrompt, dtype, cand.Name, cand.Description, existingText, window),
		PersonaID: p.ID,
		Ceremony:  ceremony,
		Data: map[string]any{
			keyDataType:    dtype,
			keyName:        cand.Name,
			keyDescription: cand.Description,
			keySentiment:   cand.Sentiment,
			keyWindow:      window,
			keyMatchedID:   matchedID,
		},
	}
}

// ChainData reads the carried bag back out of a request.
func ChainData(req *entity.LLMRequest) (dtype string, cand Candidate, window, matchedID string) {
	if req.Data == nil {
		return "", Candidate{}, "", ""
	}
	dtype, _ = req.Data[keyDataType].(string)
	cand.Name, _ = req.Data[keyName].(string)
	cand.Description, _ = req.Data[keyDescription].(string)
	if v, ok := req.Data[keySentiment].(float64); ok {
		cand.Sentiment = v
	}
	window, _ = req.Data[keyWindow].(string)
	matchedID, _ = req.Data[keyMatchedID].(string)
	return dtype, cand, window, matchedID
}

// ParseCandidates reads a scan response.
func ParseCandidates(v any) []Candidate {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := obj["candidates"].([]any)
	if !ok {
		return nil
	}
	out := make([]Candidate, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		c := Candidate{}
		c.Name, _ = m["name"].(string)
		c.Description, _ = m["description"].(string)
		if s, ok := m["sentiment"].(float64); ok {
			c.Sentiment = entity.ClampSentiment(s)
		}
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ParseMatch reads a match response: an existing id or MatchNew.
func ParseMatch(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	id, _ := obj["id"].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	if strings.EqualFold(id, MatchNew) {
		return MatchNew, true
	}
	return id, true
}

// ParseUpdate reads an update response.
func ParseUpdate(v any) (UpdateFields, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return UpdateFields{}, false
	}
	f := UpdateFields{}
	f.Name, _ = obj["name"].(string)
	f.Description, _ = obj["description"].(string)
	if s, ok := obj["sentiment"].(float64); ok {
		f.Sentiment = entity.ClampSentiment(s)
	}
	if e, ok := obj["exposureDesired"].(float64); ok {
		f.ExposureDesired = entity.Clamp01(e)
	}
	if strings.TrimSpace(f.Name) == "" {
		return UpdateFields{}, false
	}
	return f, true
}

// Refs returns the stripped item list a persona may match against for a
// data type.
func Refs(s *entity.Store, p *entity.Persona, dtype string) []ItemRef {
	var out []ItemRef
	switch dtype {
	case TypeFact:
		for _, f := range s.VisibleFacts(p) {
			out = append(out, ItemRef{ID: f.ID, Name: f.Name, Description: f.Description})
		}
	case TypeTrait:
		for _, t := range s.VisibleTraits(p) {
			out = append(out, ItemRef{ID: t.ID, Name: t.Name, Description: t.Description})
		}
	case TypeTopic:
		for _, t := range s.VisibleTopics(p) {
			out = append(out, ItemRef{ID: t.ID, Name: t.Name, Description: t.Description})
		}
	case TypePerson:
		for _, per := range s.VisiblePeople(p) {
			out = append(out, ItemRef{ID: per.ID, Name: per.Name, Description: per.Description})
		}
	}
	return out
}

// RefText renders a matched item for the update prompt, or a placeholder
// for new items.
func RefText(s *entity.Store, p *entity.Persona, dtype, matchedID string) string {
	if matchedID == "" || matchedID == MatchNew {
		return "(none, this is a new item)"
	}
	for _, ref := range Refs(s, p, dtype) {
		if ref.ID == matchedID {
			return fmt.Sprintf("id: %s\nname: %s\ndescription: %s", ref.ID, ref.Name, ref.Description)
		}
	}
	return "(none, this is a new item)"
}

// ApplyUpdate writes an update step's result into the store, creating or
// merging the item. Group assignment: a new item takes the originating
// persona's primary group; an existing item takes the union of its groups
// and the persona's primary. A persona with no primary (Ei) leaves
// existing groups untouched. Returns the stored item's id.
func ApplyUpdate(s *entity.Store, p *entity.Persona, dtype, matchedID string, f UpdateFields) (string, error) {
	isNew := matchedID == "" || matchedID == MatchNew

	switch dtype {
	case TypeFact:
		item := entity.Fact{}
		if !isNew {
			found := false
			for _, existing := range s.Human.Facts {
				if existing.ID == matchedID {
					item, found = existing, true
					break
				}
			}
			isNew = !found
		}
		applyBase(&item.DataItem, p, isNew, f)
		return s.UpsertFact(item).ID, nil

	case TypeTrait:
		item := entity.Trait{}
		if !isNew {
			found := false
			for _, existing := range s.Human.Traits {
				if existing.ID == matchedID {
					item, found = existing, true
					break
				}
			}
			isNew = !found
		}
		applyBase(&item.DataItem, p, isNew, f)
		return s.UpsertTrait(item).ID, nil

	case TypeTopic:
		item := entity.Topic{}
		if !isNew {
			found := false
			for _, existing := range s.Human.Topics {
				if existing.ID == matchedID {
					item, found = existing, true
					break
				}
			}
			isNew = !found
		}
		applyBase(&item.DataItem, p, isNew, f)
		item.ExposureDesired = f.ExposureDesired
		return s.UpsertTopic(item).ID, nil

	case TypePerson:
		item := entity.Person{}
		if !isNew {
			found := false
			for _, existing := range s.Human.People {
				if existing.ID == matchedID {
					item, found = existing, true
					break
				}
			}
			isNew = !found
		}
		applyBase(&item.DataItem, p, isNew, f)
		item.ExposureDesired = f.ExposureDesired
		return s.UpsertPerson(item).ID, nil
	}
	return "", fmt.Errorf("unknown data type %q", dtype)
}

func applyBase(base *entity.DataItem, p *entity.Persona, isNew bool, f UpdateFields) {
	base.Name = f.Name
	base.Description = f.Description
	base.Sentiment = f.Sentiment
	if isNew {
		base.ID = ""
		base.PersonaGroups = entity.GroupsForNewItem(p)
		if p != nil {
			base.LearnedBy = p.ID
		}
	} else {
		primary := ""
		if p != nil {
			primary = p.GroupPrimary
		}
		base.PersonaGroups = entity.MergeGroup(base.PersonaGroups, primary)
	}
}

// ApplyQuoteCandidates stores quote-scan candidates directly: quotes skip
// the match/update steps since they dedupe on exact text.
func ApplyQuoteCandidates(s *entity.Store, cands []Candidate, now time.Time) int {
	added := 0
	for _, c := range cands {
		text := strings.TrimSpace(c.Description)
		if text == "" {
			continue
		}
		dup := false
		for _, q := range s.Human.Quotes {
			if q.Text == text {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		s.UpsertQuote(entity.Quote{
			Speaker:    c.Name,
			Text:       text,
			Provenance: entity.QuoteFromExtraction,
			CreatedAt:  now,
		})
		added++
	}
	return added
}
