package workflow

import (
	"context"
	"fmt"
	"slices"
	"time"

	"clientflow/api/internal/ai"
	"clientflow/api/internal/apperr"
	"clientflow/api/internal/clients"
	"clientflow/api/internal/ledger"
	"clientflow/api/internal/notes"
	"clientflow/api/internal/reconcile"
	"clientflow/api/internal/store"
	"clientflow/api/internal/tasks"
	"clientflow/api/internal/workspace"
)

// RunAgendas prepares an agenda for every upcoming client meeting that does
// not have one yet. Outside business hours it does nothing.
func (e *Engine) RunAgendas(ctx context.Context) (Report, error) {
	r := e.newRun("agenda")
	now := e.Now().In(e.settings.Location)
	if !e.withinBusinessHours(now) {
		r.report.Skipped = "outside business hours"
		e.Logger.Info("agenda run skipped", "reason", r.report.Skipped, "local_time", now.Format(time.DateTime))
		return *r.report, nil
	}
	if e.Calendar == nil {
		return *r.report, apperr.Config("agenda generation", "CLIENTFLOW_WORKSPACE_URL")
	}

	matcher, err := e.loadMatcher(ctx)
	if err != nil {
		return *r.report, err
	}
	events, err := e.Calendar.ListEvents(ctx, now, now.Add(e.settings.AgendaLookahead))
	if err != nil {
		return *r.report, fmt.Errorf("list calendar events: %w", err)
	}
	e.Logger.Info("agenda run started", "events", len(events), "clients", len(matcher.Clients()))

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return *r.report, err
		}
		e.agendaForEvent(ctx, r, matcher, event)
	}
	return *r.report, nil
}

func (e *Engine) withinBusinessHours(local time.Time) bool {
	if len(e.settings.BusinessDays) > 0 && !slices.Contains(e.settings.BusinessDays, local.Weekday()) {
		return false
	}
	if e.settings.BusinessStart == 0 && e.settings.BusinessEnd == 0 {
		return true
	}
	hour := local.Hour()
	return hour >= e.settings.BusinessStart && hour < e.settings.BusinessEnd
}

func (e *Engine) agendaForEvent(ctx context.Context, r *run, matcher *clients.Matcher, event workspace.Event) EventResult {
	result := EventResult{ID: event.ID, State: StateDiscovered}
	addresses := e.externalAddresses(event.Attendees)
	if len(addresses) == 0 {
		result.State = StateNoMatch
		return e.finish(ctx, r, "agenda", result, event.Title+": no external attendees", nil)
	}

	details := fmt.Sprintf("%s (%s)", event.Title, event.Start.Format(time.RFC3339))
	match := e.identify(ctx, matcher, "calendar_event", event.ID, details, addresses)
	if !match.Matched() {
		result.State = StateNoMatch
		return e.finish(ctx, r, "agenda", result, details+": no client matched", nil)
	}
	client := *match.Client
	result.Client = client.Name
	result.State = StateMatched

	key := ledger.Key{Namespace: ledger.GeneratedAgenda, ExternalID: event.ID}
	done, err := e.Ledger.HasProcessed(ctx, key)
	if err != nil {
		return e.finish(ctx, r, "agenda", result, details, err)
	}
	if done {
		result.State = StateAlreadyGenerated
		e.note(r, result)
		return result
	}

	if e.AI == nil {
		return e.finish(ctx, r, "agenda", result, details, apperr.Config("agenda generation", "CLIENTFLOW_AI_API_KEY"))
	}
	if e.Mailer == nil || !e.Mailer.IsConfigured() {
		return e.finish(ctx, r, "agenda", result, details, apperr.Config("agenda email", "SMTP_HOST"))
	}

	req, err := e.gatherContext(ctx, client, event)
	if err != nil {
		return e.finish(ctx, r, "agenda", result, details, err)
	}
	result.State = StateContextGathered

	fragment, err := e.AI.GenerateAgenda(ctx, req)
	if err != nil {
		return e.finish(ctx, r, "agenda", result, details, err)
	}
	result.State = StateAIGenerated

	stepID := "agenda:" + event.ID
	err = e.step(ctx, stepID, "email", client.ID, func() error {
		return e.Mailer.SendAgenda([]string{e.settings.OwnerEmail}, client.Name, event.Title, event.Start, fragment)
	})
	if err != nil {
		return e.finish(ctx, r, "agenda", result, details, err)
	}
	result.State = StateEmailSent

	if e.Notes != nil && client.NotesDocID != "" {
		section := notes.Section{ID: "agenda-" + event.ID, Kind: notes.KindAgenda, Title: event.Title, Date: event.Start, Body: fragment}
		err = e.step(ctx, stepID, "append", client.ID, func() error {
			if err := e.Notes.Append(ctx, client.NotesDocID, section); err != nil {
				return err
			}
			e.indexSection(ctx, client, section)
			return nil
		})
		if err != nil {
			return e.finish(ctx, r, "agenda", result, details, err)
		}
	}
	result.State = StateDocAppended

	err = e.step(ctx, stepID, "record", client.ID, func() error {
		return e.Recorder.InsertGeneratedAgenda(ctx, store.GeneratedAgenda{EventID: event.ID, Title: event.Title, Client: client.Name})
	})
	if err == nil {
		err = e.Ledger.MarkProcessed(ctx, key, client.ID, map[string]any{
			"title": event.Title,
			"start": event.Start.UTC().Format(time.RFC3339),
		})
	}
	if err != nil {
		return e.finish(ctx, r, "agenda", result, details, err)
	}
	result.State = StateRecorded
	return e.finish(ctx, r, "agenda", result, details, nil)
}

// gatherContext collects due tasks, recent threads, the last summary and the
// action items from it that are still not tracked.
func (e *Engine) gatherContext(ctx context.Context, client clients.Client, event workspace.Event) (ai.AgendaRequest, error) {
	req := ai.AgendaRequest{
		ClientName:   client.Name,
		MeetingTitle: event.Title,
		MeetingStart: event.Start.In(e.settings.Location),
		Attendees:    event.Attendees,
	}

	var current []tasks.Task
	if e.Tasks != nil && client.TaskProjectID != "" {
		list, err := e.Tasks.ListTasks(ctx, client.TaskProjectID)
		if err != nil {
			return req, err
		}
		current = list
		req.Tasks = tasks.DueBy(list, e.Now().In(e.settings.Location), e.settings.AgendaTaskLimit)
	}

	if query := clientMailQuery(client); query != "" && e.Mailbox != nil {
		threads, err := e.Mailbox.SearchThreads(ctx, query, e.Now().Add(-e.settings.AgendaThreadWindow), e.settings.AgendaThreadLimit)
		if err != nil {
			return req, err
		}
		if len(threads) > e.settings.AgendaThreadLimit {
			threads = threads[:e.settings.AgendaThreadLimit]
		}
		for _, thread := range threads {
			req.Threads = append(req.Threads, ai.ThreadDigest{Subject: thread.Subject, From: thread.From, Date: thread.Date, Snippet: thread.Snippet})
		}
	}

	if e.Notes != nil && client.NotesDocID != "" {
		last, ok, err := e.Notes.MostRecent(ctx, client.NotesDocID, notes.KindSummary)
		if err != nil {
			return req, err
		}
		if ok {
			req.LastNotes = last.Body
			req.OpenItems = reconcile.FindUnmatched(ExtractFallback(last.Body), current)
		}
	}
	return req, nil
}
