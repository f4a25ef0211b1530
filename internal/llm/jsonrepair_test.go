package llm

import (
	"errors"
	"testing"
)

func TestRepairJSONCleanInput(t *testing.T) {
	v, err := RepairJSON(`{"id": "abc"}`)
	if err != nil {
		t.Fatalf("RepairJSON: %v", err)
	}
	obj, ok := v.(map[string]any)
	if !ok || obj["id"] != "abc" {
		t.Errorf("parsed = %v", v)
	}
}

func TestRepairJSONCodeFence(t *testing.T) {
	raw := "```json\n{\"candidates\": []}\n```"
	v, err := RepairJSON(raw)
	if err != nil {
		t.Fatalf("RepairJSON: %v", err)
	}
	if _, ok := v.(map[string]any); !ok {
		t.Errorf("parsed = %T, want object", v)
	}
}

func TestRepairJSONProseWrapped(t *testing.T) {
	raw := `Sure! Here is the result: {"id": "new"} Let me know if you need anything else.`
	v, err := RepairJSON(raw)
	if err != nil {
		t.Fatalf("RepairJSON: %v", err)
	}
	obj := v.(map[string]any)
	if obj["id"] != "new" {
		t.Errorf("id = %v, want new", obj["id"])
	}
}

func TestRepairJSONNestedBracesInStrings(t *testing.T) {
	raw := `prefix {"text": "a } inside a string", "n": 1} suffix`
	v, err := RepairJSON(raw)
	if err != nil {
		t.Fatalf("RepairJSON: %v", err)
	}
	obj := v.(map[string]any)
	if obj["text"] != "a } inside a string" {
		t.Errorf("text = %v", obj["text"])
	}
}

func TestRepairJSONArray(t *testing.T) {
	v, err := RepairJSON(`The list: [1, 2, 3]`)
	if err != nil {
		t.Fatalf("RepairJSON: %v", err)
	}
	arr, ok := v.([]any)
	if !ok || len(arr) != 3 {
		t.Errorf("parsed = %v", v)
	}
}

func TestRepairJSONMalformed(t *testing.T) {
	for _, raw := range []string{"", "no json here", "{broken"} {
		_, err := RepairJSON(raw)
		if err == nil {
			t.Errorf("RepairJSON(%q) succeeded, want malformed error", raw)
			continue
		}
		var me *ModelError
		if !errors.As(err, &me) || me.Code != CodeMalformed {
			t.Errorf("RepairJSON(%q) error = %v, want %s", raw, err, CodeMalformed)
		}
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) != nil")
	}
	err := Classify(errors.New("connection refused"))
	if CodeOf(err) != CodeServer {
		t.Errorf("unclassified error code = %s, want %s", CodeOf(err), CodeServer)
	}
	// Already-classified errors pass through unchanged.
	orig := Malformed(errors.New("bad"))
	if Classify(orig) != orig {
		t.Error("classified error was re-wrapped")
	}
}
