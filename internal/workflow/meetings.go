package workflow

import (
	"context"
	"fmt"
	"strings"

	"clientflow/api/internal/apperr"
	"clientflow/api/internal/clients"
	"clientflow/api/internal/ledger"
	"clientflow/api/internal/webhook"
	"clientflow/api/internal/workspace"
)

// MeetingOutcome is what HandleMeeting did with one recorded meeting.
type MeetingOutcome struct {
	Key     string `json:"key"`
	State   State  `json:"state"`
	DraftID string `json:"draftId,omitempty"`
	Client  string `json:"client,omitempty"`
}

// HandleMeeting turns a recorded meeting into a summary draft for the owner
// to review. A draft is created even when no client matches, so no meeting
// content is lost. Webhook deliveries and the poller share the same key.
func (e *Engine) HandleMeeting(ctx context.Context, meeting webhook.Meeting) (MeetingOutcome, error) {
	r := e.newRun("webhook")
	matcher, err := e.loadMatcher(ctx)
	if err != nil {
		return MeetingOutcome{Key: meeting.DedupKey(), State: StateFailed}, err
	}
	return e.handleMeeting(ctx, r, matcher, meeting)
}

// RunMeetings polls the recorder for meetings the webhook may have missed.
func (e *Engine) RunMeetings(ctx context.Context) (Report, error) {
	r := e.newRun("meetings")
	if e.Meetings == nil {
		return *r.report, apperr.Config("meeting poll", "CLIENTFLOW_MEETINGS_API_KEY")
	}
	matcher, err := e.loadMatcher(ctx)
	if err != nil {
		return *r.report, err
	}
	meetings, err := e.Meetings.ListRecent(ctx, e.Now().Add(-e.settings.MeetingPollWindow))
	if err != nil {
		return *r.report, fmt.Errorf("list recent meetings: %w", err)
	}
	for _, meeting := range meetings {
		if err := ctx.Err(); err != nil {
			return *r.report, err
		}
		// failures are already in the report and processing log
		_, _ = e.handleMeeting(ctx, r, matcher, meeting)
	}
	return *r.report, nil
}

func (e *Engine) handleMeeting(ctx context.Context, r *run, matcher *clients.Matcher, meeting webhook.Meeting) (MeetingOutcome, error) {
	out := MeetingOutcome{Key: meeting.DedupKey(), State: StateDetected}
	result := EventResult{ID: out.Key, State: StateDetected}
	details := meeting.Title
	if e.Mailbox == nil {
		err := apperr.Config("summary drafts", "CLIENTFLOW_WORKSPACE_URL")
		out.State = StateFailed
		e.finish(ctx, r, "meeting", result, details, err)
		return out, err
	}

	key := ledger.Key{Namespace: ledger.MeetingDraft, ExternalID: out.Key}
	done, err := e.Ledger.HasProcessed(ctx, key)
	if err != nil {
		out.State = StateFailed
		e.finish(ctx, r, "meeting", result, details, err)
		return out, err
	}
	if done {
		out.State = StateDuplicate
		result.State = StateDuplicate
		e.note(r, result)
		return out, nil
	}
	result.State = StateDeduplicated

	addresses := e.externalAddresses(meeting.Emails())
	var client *clients.Client
	if len(addresses) > 0 {
		if match := e.identify(ctx, matcher, "meeting", out.Key, details, addresses); match.Matched() {
			client = match.Client
			out.Client = client.Name
			result.Client = client.Name
			result.State = StateClientIdentified
		}
	}

	items := meeting.Items()
	if len(items) == 0 && strings.TrimSpace(meeting.Transcript) != "" {
		items = e.extractItems(ctx, meeting.Transcript)
	}

	// durable re-check right before the side effect
	if committed, err := e.Ledger.Committed(ctx, key); err != nil || committed {
		if err != nil {
			out.State = StateFailed
			e.finish(ctx, r, "meeting", result, details, err)
			return out, err
		}
		out.State = StateDuplicate
		result.State = StateDuplicate
		e.note(r, result)
		return out, nil
	}

	draftID, err := e.Mailbox.CreateDraft(ctx, workspace.Draft{
		To:      addresses,
		Subject: "Meeting summary: " + meeting.Title,
		Body:    draftBody(meeting, items),
	})
	if err != nil {
		out.State = StateFailed
		e.finish(ctx, r, "meeting", result, details, err)
		return out, err
	}
	out.DraftID = draftID

	clientID := ""
	if client != nil {
		clientID = client.ID
	}
	err = e.Ledger.MarkPending(ctx, ledger.Key{Namespace: ledger.PendingDraft, ExternalID: draftID}, clientID, map[string]any{
		"meeting": out.Key,
		"title":   meeting.Title,
	})
	if err == nil {
		err = e.Ledger.MarkProcessed(ctx, key, clientID, map[string]any{"draft_id": draftID, "title": meeting.Title})
	}
	if err != nil {
		out.State = StateFailed
		e.finish(ctx, r, "meeting", result, details, err)
		return out, err
	}

	out.State = StateDraftCreated
	result.State = StateDraftCreated
	e.finish(ctx, r, "meeting", result, fmt.Sprintf("%s: draft %s with %d action items", details, draftID, len(items)), nil)
	return out, nil
}
