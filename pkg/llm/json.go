package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// thinkBlock matches a leading reasoning block some models emit before the answer.
var thinkBlock = regexp.MustCompile(`(?s)^\s*<think>.*?</think>`)

// ExtractJSON returns the first complete JSON object or array in a model response,
// skipping a leading <think> block, markdown code fences and surrounding prose.
// A response that is a bare JSON scalar is returned as is.
func ExtractJSON(response string) (string, error) {
	text := thinkBlock.ReplaceAllString(response, "")

	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end, ok := matchClosing(text, i)
		if !ok {
			continue
		}
		if candidate := text[i:end]; json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	if trimmed := strings.TrimSpace(text); json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	return "", errors.New("no valid JSON found in response")
}

// matchClosing returns the index just past the bracket closing the one at start.
// Brackets inside string literals are ignored; a mismatched closer ends the match.
func matchClosing(s string, start int) (int, bool) {
	var expect []byte
	inString, escaped := false, false

	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{':
			expect = append(expect, '}')
		case c == '[':
			expect = append(expect, ']')
		case c == '}' || c == ']':
			if len(expect) == 0 || expect[len(expect)-1] != c {
				return 0, false
			}
			expect = expect[:len(expect)-1]
			if len(expect) == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// ParseJSONResponse extracts JSON from a response and unmarshals it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	payload, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return result, nil
}
