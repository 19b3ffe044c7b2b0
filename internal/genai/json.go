package genai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeJSON unmarshals a model response into out, stripping markdown
// code fences the model sometimes wraps JSON in.
func decodeJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty model response")
	}

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		end := len(lines) - 1
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				end = i
				break
			}
		}
		text = strings.Join(lines[1:end], "\n")
	}

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("parsing model response as JSON: %w", err)
	}
	return nil
}
