package llm

import (
	"errors"
	"regexp"
	"strings"
)

// ErrEmptyContent reports a response that, after stripping provider-internal
// reasoning blocks, carries too little text to be usable. Unlike
// ErrEmptyResponse this is terminal: the provider answered, but only with
// deliberation, and a structurally identical retry tends to do the same.
var ErrEmptyContent = errors.New("llm: response empty after sanitization")

// MinUsableLength is the floor below which sanitized output is treated as
// unusable.
const MinUsableLength = 50

var reasoningBlockRes = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<reasoning>.*?</reasoning>`),
}

// Sanitize strips all reasoning-marker blocks (non-greedy, every
// occurrence) and trims whitespace. It returns ErrEmptyContent if fewer
// than MinUsableLength characters remain.
func Sanitize(raw string) (string, error) {
	s := raw
	for _, re := range reasoningBlockRes {
		s = re.ReplaceAllString(s, "")
	}
	s = strings.TrimSpace(s)
	if len(s) < MinUsableLength {
		return "", ErrEmptyContent
	}
	return s, nil
}
