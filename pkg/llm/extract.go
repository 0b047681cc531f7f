package llm

import (
	"strings"

	"github.com/kafeai/brigade/pkg/errors"
)

// ExtractJSONObject returns the first balanced {...} span in text.
// Models routinely wrap structured output in markdown fences or surround it
// with prose; both are tolerated. String literals and escapes inside the
// object are respected when balancing braces.
func ExtractJSONObject(text string) (string, error) {
	return extractBalanced(text, '{', '}')
}

// ExtractJSONArray returns the first balanced [...] span in text.
func ExtractJSONArray(text string) (string, error) {
	return extractBalanced(text, '[', ']')
}

func extractBalanced(text string, open, close byte) (string, error) {
	cleaned := stripFences(text)

	start := strings.IndexByte(cleaned, open)
	if start < 0 {
		return "", errors.New(errors.CodeParse, "no JSON payload found in response", nil).
			WithContext("wanted", string(open))
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		c := cleaned[i]
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return cleaned[start : i+1], nil
			}
		}
	}
	return "", errors.New(errors.CodeParse, "unbalanced JSON payload in response", nil)
}

func stripFences(text string) string {
	out := strings.ReplaceAll(text, "```json", "")
	out = strings.ReplaceAll(out, "```", "")
	return strings.TrimSpace(out)
}
