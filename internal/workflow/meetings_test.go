package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientflow/api/internal/apperr"
	"clientflow/api/internal/ledger"
	"clientflow/api/internal/store"
	"clientflow/api/internal/webhook"
)

func TestDuplicateDeliveryCreatesOneDraft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.engine.HandleMeeting(ctx, acmeMeeting())
	require.NoError(t, err)
	require.Equal(t, StateDraftCreated, first.State)

	h.redis.FlushAll()
	second, err := h.engine.HandleMeeting(ctx, acmeMeeting())
	require.NoError(t, err)
	assert.Equal(t, StateDuplicate, second.State)
	assert.Equal(t, first.Key, second.Key)
	assert.Len(t, h.mailbox.drafts, 1)
	assert.Equal(t, 1, h.durable.Count(ledger.PendingDraft, store.LedgerPending))
}

func TestPollAndWebhookConvergeOnOneDraft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	meeting := acmeMeeting()
	meeting.URL = ""
	h.meetings.meetings = []webhook.Meeting{meeting}

	_, err := h.engine.HandleMeeting(ctx, meeting)
	require.NoError(t, err)

	report, err := h.engine.RunMeetings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(StateDuplicate))
	assert.Len(t, h.mailbox.drafts, 1)
}

func TestDraftBodyRoundTripsThroughParser(t *testing.T) {
	meeting := acmeMeeting()
	body := draftBody(meeting, meeting.Items())

	items := ExtractFallback(body)
	require.Len(t, items, 3)
	assert.Equal(t, "Send the statement of work", items[0].Description)
	assert.Equal(t, "Jane", items[0].Assignee)
	assert.Contains(t, body, meeting.URL)
}

func TestRunMeetingsRequiresRecorder(t *testing.T) {
	h := newHarness(t)
	h.engine.Meetings = nil

	_, err := h.engine.RunMeetings(context.Background())
	assert.True(t, apperr.IsConfiguration(err))
}

func TestTranscriptOnlyMeetingUsesExtraction(t *testing.T) {
	h := newHarness(t)
	h.engine.AI = nil
	meeting := acmeMeeting()
	meeting.ActionItems = nil
	meeting.Transcript = "Jane: fine.\n\nAction Items\n1. Follow up on invoices\n"

	_, err := h.engine.HandleMeeting(context.Background(), meeting)
	require.NoError(t, err)
	require.Len(t, h.mailbox.drafts, 1)
	assert.Contains(t, h.mailbox.drafts[0].Body, "1. Follow up on invoices")
}
