package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrMalformedJSON means a response was not valid JSON even after repair
var ErrMalformedJSON = errors.New("malformed JSON response")

// ParseJSON decodes raw into v. Invalid input gets exactly one Repair pass
// before ErrMalformedJSON is returned.
func ParseJSON(raw string, v any) error {
	err := json.Unmarshal([]byte(strings.TrimSpace(raw)), v)
	if err == nil {
		return nil
	}

	repaired, err := Repair(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return nil
}

// Repair cuts model output down to its JSON value (markdown fences and
// surrounding prose removed) and hands it to jsonrepair, which fixes
// typographic quotes, trailing commas, unterminated strings and unclosed
// brackets. Quotes inside string values are left alone.
func Repair(raw string) (string, error) {
	s := outermostValue(stripCodeFence(strings.TrimSpace(raw)))
	if s == "" {
		return "", errors.New("no JSON value in response")
	}
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return "", fmt.Errorf("repair: %w", err)
	}
	return repaired, nil
}

func stripCodeFence(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// outermostValue cuts s down to the first object or array, through its last
// closing bracket when one exists
func outermostValue(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(s, closer); end > start {
		return s[start : end+1]
	}
	return s[start:]
}
