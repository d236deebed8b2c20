package ai

import (
	"fmt"
	"strings"

	"github.com/titanous/json5"

	"github.com/patrickjm/patsearch/internal/failure"
)

// Decode parses a model reply into v. Code fences and text around the first
// JSON value are ignored, and JSON5 leniency such as trailing commas is
// accepted.
func Decode(raw string, v any) error {
	payload := extractJSON(raw)
	if payload == "" {
		return fmt.Errorf("%w: reply contains no JSON", failure.ErrCollaboratorUnavailable)
	}
	if err := json5.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", failure.ErrCollaboratorUnavailable, err)
	}
	return nil
}

func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}
