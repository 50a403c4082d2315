package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"clientflow/api/internal/tasks"
)

func items(descriptions ...string) []ActionItem {
	out := make([]ActionItem, 0, len(descriptions))
	for _, d := range descriptions {
		out = append(out, ActionItem{Description: d})
	}
	return out
}

func taskList(contents ...string) []tasks.Task {
	out := make([]tasks.Task, 0, len(contents))
	for _, c := range contents {
		out = append(out, tasks.Task{Content: c})
	}
	return out
}

func TestSimilarityAboveThreshold(t *testing.T) {
	score := Similarity("send the proposal to the client", "Send proposal to client")
	assert.Greater(t, score, SimilarityThreshold)
	assert.InDelta(t, 0.8, score, 1e-9)
}

func TestFindUnmatched(t *testing.T) {
	tests := []struct {
		name     string
		items    []ActionItem
		existing []tasks.Task
		want     []string
	}{
		{
			name:     "word overlap excludes",
			items:    items("send the proposal to the client"),
			existing: taskList("Send proposal to client"),
			want:     []string{},
		},
		{
			name:     "unrelated included",
			items:    items("Review Q3 budget"),
			existing: taskList("Schedule kickoff"),
			want:     []string{"Review Q3 budget"},
		},
		{
			name:     "task contains item",
			items:    items("draft SOW"),
			existing: taskList("Draft SOW for phase two"),
			want:     []string{},
		},
		{
			name:     "item contains task",
			items:    items("Book the venue for the offsite in March"),
			existing: taskList("book the venue"),
			want:     []string{},
		},
		{
			name:     "no existing tasks",
			items:    items("a", "b"),
			existing: nil,
			want:     []string{"a", "b"},
		},
		{
			name:     "no items",
			items:    nil,
			existing: taskList("anything"),
			want:     []string{},
		},
		{
			name:     "blank task content does not swallow items",
			items:    items("Call the auditor"),
			existing: taskList("   "),
			want:     []string{"Call the auditor"},
		},
		{
			name:     "order preserved",
			items:    items("Prepare invoice", "Schedule kickoff call", "Update roadmap"),
			existing: taskList("Schedule kickoff call"),
			want:     []string{"Prepare invoice", "Update roadmap"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindUnmatched(tt.items, tt.existing)
			descriptions := make([]string, 0, len(got))
			for _, item := range got {
				descriptions = append(descriptions, item.Description)
			}
			assert.Equal(t, tt.want, descriptions)
		})
	}
}
