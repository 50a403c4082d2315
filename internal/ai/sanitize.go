package ai

import (
	"errors"
	"regexp"
	"strings"
)

var ErrEmptyOutput = errors.New("ai output is empty after cleanup")

var (
	fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\\n?(.*?)\\n?```$")
	bodyPattern  = regexp.MustCompile(`(?is)<body[^>]*>(.*)</body>`)
)

// StripFences removes one surrounding markdown code fence.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if match := fencePattern.FindStringSubmatch(trimmed); match != nil {
		return strings.TrimSpace(match[1])
	}
	return trimmed
}

// CleanHTML strips fences and, when the model returned a whole document,
// keeps only the body fragment. Blank results are an error.
func CleanHTML(text string) (string, error) {
	cleaned := StripFences(text)
	if match := bodyPattern.FindStringSubmatch(cleaned); match != nil {
		cleaned = strings.TrimSpace(match[1])
	}
	if cleaned == "" {
		return "", ErrEmptyOutput
	}
	return cleaned, nil
}
