// Package workflow runs the agenda and summary state machines. Every step is
// safe to repeat; the ledger's durable tier decides what already happened.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clientflow/api/internal/ai"
	"clientflow/api/internal/apperr"
	"clientflow/api/internal/clients"
	"clientflow/api/internal/filterguard"
	"clientflow/api/internal/ledger"
	"clientflow/api/internal/notes"
	"clientflow/api/internal/reconcile"
	"clientflow/api/internal/store"
	"clientflow/api/internal/tasks"
	"clientflow/api/internal/webhook"
	"clientflow/api/internal/workspace"
)

type Calendar interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]workspace.Event, error)
}

type Mailbox interface {
	SearchThreads(ctx context.Context, query string, after time.Time, limit int) ([]workspace.Thread, error)
	FirstMessages(ctx context.Context, label string, after time.Time) ([]workspace.Message, error)
	GetMessage(ctx context.Context, id string) (workspace.Message, error)
	CreateDraft(ctx context.Context, draft workspace.Draft) (string, error)
	DraftState(ctx context.Context, id string) (workspace.DraftState, error)
	LabelMessage(ctx context.Context, messageID, label string) error
}

type Tasks interface {
	ListTasks(ctx context.Context, projectID string) ([]tasks.Task, error)
	CreateTask(ctx context.Context, task tasks.NewTask) (tasks.Task, error)
	ListCollaborators(ctx context.Context, projectID string) ([]tasks.Collaborator, error)
}

type Generator interface {
	GenerateAgenda(ctx context.Context, req ai.AgendaRequest) (string, error)
	ExtractActionItems(ctx context.Context, text string) ([]reconcile.ActionItem, error)
}

type Mailer interface {
	IsConfigured() bool
	SendAgenda(to []string, clientName, meetingTitle string, start time.Time, fragment string) error
}

type Notes interface {
	Append(ctx context.Context, docID string, section notes.Section) error
	MostRecent(ctx context.Context, docID, kind string) (notes.Section, bool, error)
}

// Recorder is the durable operational record. store.PostgresStore
// implements it.
type Recorder interface {
	InsertGeneratedAgenda(ctx context.Context, agenda store.GeneratedAgenda) error
	AppendProcessingLog(ctx context.Context, entry store.ProcessingLogEntry) error
	PruneProcessingLog(ctx context.Context, before time.Time) (int64, error)
}

// Indexer makes appended notes searchable. Failures are logged only.
type Indexer interface {
	IndexSection(ctx context.Context, section store.NoteSection) error
}

type MeetingSource interface {
	ListRecent(ctx context.Context, since time.Time) ([]webhook.Meeting, error)
}

// Deps are the collaborators. Optional ones may be nil: Tasks, AI, Notes,
// Index, Meetings, Syncer.
type Deps struct {
	Directory clients.Directory
	Audit     clients.AuditSink
	Ledger    *ledger.Ledger
	Recorder  Recorder
	Calendar  Calendar
	Mailbox   Mailbox
	Mailer    Mailer
	Tasks     Tasks
	AI        Generator
	Notes     Notes
	Index     Indexer
	Meetings  MeetingSource
	Syncer    *filterguard.Syncer
	Logger    *slog.Logger
	Now       func() time.Time
}

type Settings struct {
	OwnerEmail         string
	Location           *time.Location
	BusinessStart      int
	BusinessEnd        int
	BusinessDays       []time.Weekday
	AgendaLookahead    time.Duration
	AgendaTaskLimit    int
	AgendaThreadLimit  int
	AgendaThreadWindow time.Duration
	SummaryWindow      time.Duration
	MeetingPollWindow  time.Duration
	LogRetention       time.Duration
}

type Engine struct {
	Deps
	settings Settings
}

func New(deps Deps, settings Settings) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.AgendaThreadLimit <= 0 || settings.AgendaThreadLimit > 20 {
		settings.AgendaThreadLimit = 20
	}
	if settings.AgendaThreadWindow <= 0 {
		settings.AgendaThreadWindow = 7 * 24 * time.Hour
	}
	if settings.AgendaTaskLimit <= 0 {
		settings.AgendaTaskLimit = 10
	}
	if settings.AgendaLookahead <= 0 {
		settings.AgendaLookahead = 24 * time.Hour
	}
	if settings.SummaryWindow <= 0 {
		settings.SummaryWindow = 24 * time.Hour
	}
	if settings.MeetingPollWindow <= 0 {
		settings.MeetingPollWindow = 2 * time.Hour
	}
	settings.OwnerEmail = clients.NormalizeAddress(settings.OwnerEmail)
	return &Engine{Deps: deps, settings: settings}
}

type State string

const (
	StateDiscovered       State = "DISCOVERED"
	StateMatched          State = "MATCHED"
	StateNoMatch          State = "NO_MATCH"
	StateAlreadyGenerated State = "ALREADY_GENERATED"
	StateContextGathered  State = "CONTEXT_GATHERED"
	StateAIGenerated      State = "AI_GENERATED"
	StateEmailSent        State = "EMAIL_SENT"
	StateDocAppended      State = "DOC_APPENDED"
	StateRecorded         State = "RECORDED"
	StateFailed           State = "FAILED"
	StateDuplicate        State = "DUPLICATE"

	StateDetected         State = "DETECTED"
	StateDeduplicated     State = "DEDUPLICATED"
	StateClientIdentified State = "CLIENT_IDENTIFIED"
	StateItemsExtracted   State = "ITEMS_EXTRACTED"
	StateTasksCreated     State = "TASKS_CREATED"
	StateNotesAppended    State = "NOTES_APPENDED"
	StateLabeled          State = "LABELED"

	StateDraftCreated State = "DRAFT_CREATED"
	StatePending      State = "PENDING"
	StateDiscarded    State = "DISCARDED"
)

// EventResult is the terminal state one event reached in a run.
type EventResult struct {
	ID     string `json:"id"`
	Client string `json:"client,omitempty"`
	State  State  `json:"state"`
	Error  string `json:"error,omitempty"`
}

type Report struct {
	Trigger   string        `json:"trigger"`
	StartedAt time.Time     `json:"startedAt"`
	Skipped   string        `json:"skipped,omitempty"`
	Events    []EventResult `json:"events"`
	Detail    any           `json:"detail,omitempty"`
}

// Count returns how many events ended in state.
func (r Report) Count(state State) int {
	n := 0
	for _, event := range r.Events {
		if event.State == state {
			n++
		}
	}
	return n
}

// run carries per-batch bookkeeping. Nothing in it outlives the batch.
type run struct {
	trigger      string
	report       *Report
	configLogged map[string]bool
}

func (e *Engine) newRun(trigger string) *run {
	return &run{
		trigger:      trigger,
		report:       &Report{Trigger: trigger, StartedAt: e.Now().UTC(), Events: []EventResult{}},
		configLogged: map[string]bool{},
	}
}

func (e *Engine) record(ctx context.Context, r *run, action, clientName, details, status string) {
	if e.Recorder == nil {
		return
	}
	if err := e.Recorder.AppendProcessingLog(ctx, store.ProcessingLogEntry{
		ActionType: action,
		Client:     clientName,
		Details:    details,
		Status:     status,
	}); err != nil {
		e.Logger.Error("append processing log failed", "trigger", r.trigger, "action", action, "error", err)
	}
}

// finish appends the event result and its processing-log row.
func (e *Engine) finish(ctx context.Context, r *run, action string, result EventResult, details string, err error) EventResult {
	reached := result.State
	status := store.LogSuccess
	switch {
	case err != nil:
		result.State = StateFailed
		result.Error = err.Error()
		status = store.LogError
	case result.State != StateRecorded && result.State != StateDraftCreated:
		status = store.LogSkipped
	}
	r.report.Events = append(r.report.Events, result)

	line := fmt.Sprintf("%s [%s] %s", result.ID, reached, details)
	if err != nil {
		if apperr.IsConfiguration(err) && !e.configOnce(r, err) {
			return result
		}
		if !apperr.IsConfiguration(err) {
			e.Logger.Error("event failed", "trigger", r.trigger, "event", result.ID, "client", result.Client, "reached", reached, "error", err)
		}
		line = fmt.Sprintf("%s [FAILED after %s] %s: %v", result.ID, reached, details, err)
	} else {
		e.Logger.Info("event finished", "trigger", r.trigger, "event", result.ID, "client", result.Client, "state", result.State)
	}
	e.record(ctx, r, action, result.Client, strings.TrimSpace(line), status)
	return result
}

// note appends a result without a processing-log row. Used for states that
// every poll re-observes, like duplicates and unsent drafts.
func (e *Engine) note(r *run, result EventResult) {
	r.report.Events = append(r.report.Events, result)
	e.Logger.Debug("event unchanged", "trigger", r.trigger, "event", result.ID, "state", result.State)
}

// configOnce logs a configuration error the first time a run sees it and
// reports whether this was that first time.
func (e *Engine) configOnce(r *run, err error) bool {
	if r.configLogged[err.Error()] {
		return false
	}
	r.configLogged[err.Error()] = true
	e.Logger.Error("feature not configured", "trigger", r.trigger, "error", err)
	return true
}

// identify matches addresses and audits a miss once per subject, however
// many runs re-discover it.
func (e *Engine) identify(ctx context.Context, matcher *clients.Matcher, itemType, subjectID, details string, addresses []string) clients.MatchResult {
	result := matcher.Match(addresses)
	if result.Matched() {
		return result
	}
	key := ledger.Key{Namespace: ledger.UnmatchedNotified, ExternalID: itemType + ":" + subjectID}
	notified, err := e.Ledger.HasProcessed(ctx, key)
	if err != nil {
		e.Logger.Warn("unmatched dedup lookup failed", "key", key.String(), "error", err)
	}
	if notified {
		return result
	}
	resolver := clients.NewResolver(matcher, e.Audit)
	if _, err := resolver.Identify(ctx, itemType, details, addresses); err != nil {
		e.Logger.Error("audit unmatched failed", "item", itemType, "error", err)
		return result
	}
	if err := e.Ledger.MarkProcessed(ctx, key, "", map[string]any{"details": details}); err != nil {
		e.Logger.Warn("mark unmatched notified failed", "key", key.String(), "error", err)
	}
	return result
}

func (e *Engine) loadMatcher(ctx context.Context) (*clients.Matcher, error) {
	list, err := e.Directory.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("load client directory: %w", err)
	}
	return clients.NewMatcher(list), nil
}

// externalAddresses drops the account owner and blanks, keeping order.
func (e *Engine) externalAddresses(addresses []string) []string {
	out := make([]string, 0, len(addresses))
	for _, address := range addresses {
		normalized := clients.NormalizeAddress(address)
		if normalized == "" || normalized == e.settings.OwnerEmail {
			continue
		}
		out = append(out, normalized)
	}
	return out
}

func (e *Engine) indexSection(ctx context.Context, client clients.Client, section notes.Section) {
	if e.Index == nil {
		return
	}
	record := store.NoteSection{
		ID:       section.ID,
		ClientID: client.ID,
		Kind:     section.Kind,
		Title:    section.Title,
		Body:     section.Body,
	}
	if !section.Date.IsZero() {
		date := section.Date
		record.MeetingDate = &date
	}
	if err := e.Index.IndexSection(ctx, record); err != nil {
		e.Logger.Warn("index notes section failed", "section", section.ID, "error", err)
	}
}

// step runs fn unless the durable ledger already has the marker, then
// records the marker. The durable check is made immediately before fn.
func (e *Engine) step(ctx context.Context, id, name, clientID string, fn func() error) error {
	done, err := e.Ledger.StepDone(ctx, id, name)
	if err != nil {
		return err
	}
	if done {
		e.Logger.Debug("step already done", "id", id, "step", name)
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	return e.Ledger.MarkStep(ctx, id, name, clientID)
}

// clientMailQuery matches mail from or to any of the client's contacts and
// domains.
func clientMailQuery(client clients.Client) string {
	routing := filterguard.RoutingQuery(client)
	if routing == "" {
		return ""
	}
	return routing + " OR " + strings.Replace(routing, "from:", "to:", 1)
}
