package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PabloGalante/agent-dash/internal/domain"
)

// ExtractStructured returns the first balanced {...} span in text. Braces
// inside JSON strings do not count.
func ExtractStructured(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", domain.ErrNoStructuredPayload
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", domain.ErrNoStructuredPayload
}

// DecodeStructured extracts the structured span from text and unmarshals it into v.
func DecodeStructured(text string, v any) error {
	span, err := ExtractStructured(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(span), v); err != nil {
		return fmt.Errorf("decode structured payload: %w", err)
	}
	return nil
}
