package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RepairJSON parses model output that is supposed to be JSON but often
// arrives wrapped in prose or code fences. It strips fences, trims to the
// outermost object or array, and unmarshals. A failure after repair is a
// malformed-response error.
func RepairJSON(raw string) (any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, Malformed(fmt.Errorf("empty response"))
	}

	text = stripCodeFence(text)

	var out any
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out, nil
	}

	trimmed := trimToEnclosure(text)
	if trimmed == "" {
		return nil, Malformed(fmt.Errorf("no JSON object or array in response"))
	}
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, Malformed(fmt.Errorf("parse after repair: %w", err))
	}
	return out, nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:] // drop a language tag like "json"
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// trimToEnclosure returns the substring from the first opening brace or
// bracket to its matching closer, tracking string literals.
func trimToEnclosure(text string) string {
	start := -1
	var opener, closer rune
	for i, r := range text {
		if r == '{' || r == '[' {
			start = i
			opener = r
			if r == '{' {
				closer = '}'
			} else {
				closer = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := rune(text[i])
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == opener:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
