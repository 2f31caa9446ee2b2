package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractJSON strips markdown code fences and surrounding prose from a
// model response and returns the first JSON object or array found. Models
// asked for JSON frequently wrap it in ```json fences anyway.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)

	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		} else {
			text = strings.TrimSpace(rest)
		}
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", eris.New("anthropic: no JSON found in response")
	}

	end := strings.LastIndexAny(text, "}]")
	if end < start {
		return "", eris.New("anthropic: unterminated JSON in response")
	}

	return text[start : end+1], nil
}

// DecodeJSON extracts JSON from a model response and unmarshals it into v.
func DecodeJSON(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return eris.Wrap(err, "anthropic: decode response JSON")
	}
	return nil
}
