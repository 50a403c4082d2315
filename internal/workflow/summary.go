package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"clientflow/api/internal/apperr"
	"clientflow/api/internal/clients"
	"clientflow/api/internal/filterguard"
	"clientflow/api/internal/ledger"
	"clientflow/api/internal/notes"
	"clientflow/api/internal/reconcile"
	"clientflow/api/internal/tasks"
	"clientflow/api/internal/workspace"
)

// RunSummaries checks pending drafts for ones the owner has sent, then polls
// each client's summaries label for owner-sent thread openers.
func (e *Engine) RunSummaries(ctx context.Context) (Report, error) {
	r := e.newRun("summaries")
	if e.Mailbox == nil {
		return *r.report, apperr.Config("summary processing", "CLIENTFLOW_WORKSPACE_URL")
	}
	matcher, err := e.loadMatcher(ctx)
	if err != nil {
		return *r.report, err
	}
	if err := e.pollPendingDrafts(ctx, r, matcher); err != nil {
		return *r.report, err
	}
	e.pollLabeledMail(ctx, r, matcher)
	return *r.report, ctx.Err()
}

func (e *Engine) pollPendingDrafts(ctx context.Context, r *run, matcher *clients.Matcher) error {
	entries, err := e.Ledger.PendingEntries(ctx, ledger.PendingDraft)
	if err != nil {
		return fmt.Errorf("list pending drafts: %w", err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := ledger.Key{Namespace: ledger.PendingDraft, ExternalID: entry.ExternalID}
		result := EventResult{ID: entry.ExternalID, State: StatePending}

		state, err := e.Mailbox.DraftState(ctx, entry.ExternalID)
		if errors.Is(err, filterguard.ErrNotFound) {
			err = e.Ledger.MarkProcessed(ctx, key, entry.ClientID, map[string]any{"outcome": "discarded"})
			result.State = StateDiscarded
			e.finish(ctx, r, "summary", result, "draft deleted before sending", err)
			continue
		}
		if err != nil {
			e.finish(ctx, r, "summary", result, "draft state", err)
			continue
		}
		if !state.Sent {
			e.note(r, result)
			continue
		}

		msg, err := e.Mailbox.GetMessage(ctx, state.MessageID)
		if err != nil {
			e.finish(ctx, r, "summary", result, "fetch sent draft", err)
			continue
		}
		var hint *clients.Client
		if client, ok := clientByID(matcher, entry.ClientID); ok {
			hint = &client
		}
		outcome := e.processSummary(ctx, r, matcher, msg, hint)
		if outcome.State == StateFailed {
			continue
		}
		if err := e.Ledger.MarkProcessed(ctx, key, entry.ClientID, map[string]any{"message_id": msg.ID}); err != nil {
			e.Logger.Error("close pending draft failed", "draft", entry.ExternalID, "error", err)
		}
	}
	return nil
}

func (e *Engine) pollLabeledMail(ctx context.Context, r *run, matcher *clients.Matcher) {
	after := e.Now().Add(-e.settings.SummaryWindow)
	for _, client := range matcher.Clients() {
		if ctx.Err() != nil {
			return
		}
		label := client.Labels.Summaries
		if label == "" {
			continue
		}
		messages, err := e.Mailbox.FirstMessages(ctx, label, after)
		if err != nil {
			e.finish(ctx, r, "summary", EventResult{ID: label, Client: client.Name, State: StateDetected}, "list labeled mail", err)
			continue
		}
		for _, msg := range messages {
			if addressOf(msg.From) != e.settings.OwnerEmail {
				continue
			}
			hint := client
			e.processSummary(ctx, r, matcher, msg, &hint)
		}
	}
}

// processSummary turns one sent summary email into tasks, a notes section and
// a label. Recipients decide the client; hint is used when they match none.
func (e *Engine) processSummary(ctx context.Context, r *run, matcher *clients.Matcher, msg workspace.Message, hint *clients.Client) EventResult {
	result := EventResult{ID: msg.ID, State: StateDetected}
	key := ledger.Key{Namespace: ledger.ProcessedMessage, ExternalID: msg.ID}
	done, err := e.Ledger.HasProcessed(ctx, key)
	if err != nil {
		return e.finish(ctx, r, "summary", result, msg.Subject, err)
	}
	if done {
		result.State = StateDuplicate
		e.note(r, result)
		return result
	}
	result.State = StateDeduplicated

	addresses := e.externalAddresses(msg.Recipients())
	var client clients.Client
	if match := matcher.Match(addresses); match.Matched() {
		client = *match.Client
	} else if hint != nil {
		client = *hint
	} else {
		e.identify(ctx, matcher, "summary_email", msg.ID, msg.Subject, addresses)
		result.State = StateNoMatch
		err := e.Ledger.MarkProcessed(ctx, key, "", map[string]any{"outcome": "unmatched", "subject": msg.Subject})
		return e.finish(ctx, r, "summary", result, msg.Subject+": no client matched", err)
	}
	result.Client = client.Name
	result.State = StateClientIdentified

	items := e.extractItems(ctx, msg.Body)
	result.State = StateItemsExtracted

	stepID := "summary:" + msg.ID
	created, err := e.createTasks(ctx, r, client, stepID, msg.Subject, items)
	if err != nil {
		return e.finish(ctx, r, "summary", result, msg.Subject, err)
	}
	result.State = StateTasksCreated

	if e.Notes != nil && client.NotesDocID != "" {
		section := notes.Section{ID: "summary-" + msg.ID, Kind: notes.KindSummary, Title: msg.Subject, Date: msg.Date, Body: msg.Body}
		err = e.step(ctx, stepID, "notes", client.ID, func() error {
			if err := e.Notes.Append(ctx, client.NotesDocID, section); err != nil {
				return err
			}
			e.indexSection(ctx, client, section)
			return nil
		})
		if err != nil {
			return e.finish(ctx, r, "summary", result, msg.Subject, err)
		}
	}
	result.State = StateNotesAppended

	if label := client.Labels.Summaries; label != "" && !slices.Contains(msg.Labels, label) {
		if err := e.Mailbox.LabelMessage(ctx, msg.ID, label); err != nil {
			return e.finish(ctx, r, "summary", result, msg.Subject, err)
		}
	}
	result.State = StateLabeled

	err = e.Ledger.MarkProcessed(ctx, key, client.ID, map[string]any{
		"subject":       msg.Subject,
		"items":         len(items),
		"tasks_created": created,
	})
	if err != nil {
		return e.finish(ctx, r, "summary", result, msg.Subject, err)
	}
	result.State = StateRecorded
	return e.finish(ctx, r, "summary", result, fmt.Sprintf("%s: %d action items, %d tasks created", msg.Subject, len(items), created), nil)
}

// createTasks creates one task per item. A freshly sent summary is not
// reconciled against existing tasks; each item is guarded by its own step
// marker so a retry only creates what is missing.
func (e *Engine) createTasks(ctx context.Context, r *run, client clients.Client, stepID, source string, items []reconcile.ActionItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if e.Tasks == nil {
		e.configOnce(r, apperr.Config("task creation", "CLIENTFLOW_TASKS_API_TOKEN"))
		return 0, nil
	}
	if client.TaskProjectID == "" {
		e.Logger.Warn("client has no task project, skipping task creation", "client", client.Name, "items", len(items))
		return 0, nil
	}

	collaborators, err := e.Tasks.ListCollaborators(ctx, client.TaskProjectID)
	if err != nil {
		e.Logger.Warn("list collaborators failed, creating tasks unassigned", "client", client.Name, "error", err)
	}

	created := 0
	for _, item := range items {
		err := e.step(ctx, stepID, "task-"+itemFingerprint(item.Description), client.ID, func() error {
			task := tasks.NewTask{
				ProjectID:   client.TaskProjectID,
				Content:     item.Description,
				Description: "From meeting summary: " + source,
				Due:         item.DueDate,
			}
			if id, ok := tasks.ResolveAssignee(collaborators, item.Assignee); ok {
				task.AssigneeID = id
			} else if item.AssigneeID != "" {
				task.AssigneeID = item.AssigneeID
			}
			if _, err := e.Tasks.CreateTask(ctx, task); err != nil {
				return err
			}
			created++
			return nil
		})
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

func clientByID(matcher *clients.Matcher, id string) (clients.Client, bool) {
	if id == "" {
		return clients.Client{}, false
	}
	for _, client := range matcher.Clients() {
		if client.ID == id {
			return client, true
		}
	}
	return clients.Client{}, false
}
