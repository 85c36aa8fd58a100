package ai

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a response carries no JSON object.
var ErrNoJSON = errors.New("no JSON object in model response")

// ExtractJSON returns the outermost JSON object of a model answer, tolerating markdown
// code fences and prose around it.
func ExtractJSON(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrNoJSON
	}
	candidate := []byte(text[start : end+1])
	if !json.Valid(candidate) {
		return nil, ErrNoJSON
	}
	return candidate, nil
}
