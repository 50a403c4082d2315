package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFallback(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "plain heading",
			text: "Notes\n\nAction Items\n1. Send deck\n2) Call Bob\n",
			want: []string{"Send deck", "Call Bob"},
		},
		{
			name: "markdown heading with colon",
			text: "## **Action Items:**\n\n1. First\n\n2. Second\nThanks!\n3. Not an item",
			want: []string{"First", "Second"},
		},
		{
			name: "html body",
			text: "<p>Hi</p><h3>Action Items</h3><ol><li>1. Draft plan</li></ol>",
			want: []string{"Draft plan"},
		},
		{
			name: "no heading",
			text: "1. Orphan item",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, item := range ExtractFallback(tt.text) {
				got = append(got, item.Description)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractFallbackOwner(t *testing.T) {
	items := ExtractFallback("Action Items\n1. Review contract (owner: Priya Shah)\n")
	if assert.Len(t, items, 1) {
		assert.Equal(t, "Review contract", items[0].Description)
		assert.Equal(t, "Priya Shah", items[0].Assignee)
	}
}

func TestItemFingerprintIgnoresCaseAndSpacing(t *testing.T) {
	assert.Equal(t, itemFingerprint("Send  the Deck"), itemFingerprint("send the deck"))
	assert.NotEqual(t, itemFingerprint("send the deck"), itemFingerprint("send the memo"))
}

func TestAddressOf(t *testing.T) {
	assert.Equal(t, "owner@example.com", addressOf("The Owner <Owner@Example.com>"))
	assert.Equal(t, "plain@example.com", addressOf(" plain@example.com "))
}
