// Package reconcile decides which extracted action items are not yet
// represented in the task tracker.
package reconcile

import (
	"strings"
	"time"

	"clientflow/api/internal/tasks"
)

// SimilarityThreshold is the word-overlap score above which an item counts
// as already tracked.
const SimilarityThreshold = 0.70

// ActionItem is one follow-up extracted from a meeting.
type ActionItem struct {
	Description string     `json:"description"`
	Assignee    string     `json:"assignee,omitempty"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// FindUnmatched returns the items not covered by any existing task, in
// input order. Blank items are dropped.
func FindUnmatched(items []ActionItem, existing []tasks.Task) []ActionItem {
	out := make([]ActionItem, 0, len(items))
	contents := make([]string, 0, len(existing))
	for _, task := range existing {
		if content := normalize(task.Content); content != "" {
			contents = append(contents, content)
		}
	}
	for _, item := range items {
		text := normalize(item.Description)
		if text == "" {
			continue
		}
		if !covered(text, contents) {
			out = append(out, item)
		}
	}
	return out
}

func covered(item string, contents []string) bool {
	for _, content := range contents {
		if strings.Contains(content, item) || strings.Contains(item, content) {
			return true
		}
		if Similarity(item, content) > SimilarityThreshold {
			return true
		}
	}
	return false
}

// Similarity is |words(a) ∩ words(b)| / max(|words(a)|, |words(b)|) over
// lower-cased, whitespace-separated word sets.
func Similarity(a, b string) float64 {
	left := wordSet(a)
	right := wordSet(b)
	larger := len(left)
	if len(right) > larger {
		larger = len(right)
	}
	if larger == 0 {
		return 0
	}
	shared := 0
	for word := range left {
		if _, ok := right[word]; ok {
			shared++
		}
	}
	return float64(shared) / float64(larger)
}

func wordSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		set[field] = struct{}{}
	}
	return set
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
