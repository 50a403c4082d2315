package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"clientflow/api/internal/ai"
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

const owner = "owner@consulting.example"

// Tuesday 10:00 UTC
var testNow = time.Date(2026, 10, 13, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var acme = clients.Client{
	ID:            "acme",
	Name:          "Acme",
	Contacts:      []string{"jane@acme.example"},
	Domains:       []string{"acme.example"},
	NotesDocID:    "doc-acme",
	TaskProjectID: "proj-acme",
	Labels:        clients.DefaultLabels("Acme"),
}

type staticDirectory []clients.Client

func (d staticDirectory) ListClients(context.Context) ([]clients.Client, error) {
	return append([]clients.Client(nil), d...), nil
}

type fakeAudit struct {
	mu      sync.Mutex
	records []clients.UnmatchedRecord
}

func (f *fakeAudit) RecordUnmatched(_ context.Context, record clients.UnmatchedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	agendas []store.GeneratedAgenda
	log     []store.ProcessingLogEntry
	pruned  time.Time
}

func (f *fakeRecorder) InsertGeneratedAgenda(_ context.Context, agenda store.GeneratedAgenda) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agendas = append(f.agendas, agenda)
	return nil
}

func (f *fakeRecorder) AppendProcessingLog(_ context.Context, entry store.ProcessingLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, entry)
	return nil
}

func (f *fakeRecorder) PruneProcessingLog(_ context.Context, before time.Time) (int64, error) {
	f.pruned = before
	return 3, nil
}

func (f *fakeRecorder) statuses() []string {
	out := make([]string, 0, len(f.log))
	for _, entry := range f.log {
		out = append(out, entry.Status)
	}
	return out
}

type fakeCalendar struct {
	events []workspace.Event
}

func (f *fakeCalendar) ListEvents(context.Context, time.Time, time.Time) ([]workspace.Event, error) {
	return f.events, nil
}

type fakeMailbox struct {
	mu        sync.Mutex
	threads   []workspace.Thread
	labeled   map[string][]workspace.Message
	messages  map[string]workspace.Message
	drafts    []workspace.Draft
	states    map[string]workspace.DraftState
	labels    map[string][]string
	failLabel error
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		labeled:  map[string][]workspace.Message{},
		messages: map[string]workspace.Message{},
		states:   map[string]workspace.DraftState{},
		labels:   map[string][]string{},
	}
}

func (f *fakeMailbox) SearchThreads(context.Context, string, time.Time, int) ([]workspace.Thread, error) {
	return f.threads, nil
}

func (f *fakeMailbox) FirstMessages(_ context.Context, label string, _ time.Time) ([]workspace.Message, error) {
	return f.labeled[label], nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, id string) (workspace.Message, error) {
	msg, ok := f.messages[id]
	if !ok {
		return workspace.Message{}, filterguard.ErrNotFound
	}
	return msg, nil
}

func (f *fakeMailbox) CreateDraft(_ context.Context, draft workspace.Draft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, draft)
	id := fmt.Sprintf("draft-%d", len(f.drafts))
	f.states[id] = workspace.DraftState{ID: id}
	return id, nil
}

func (f *fakeMailbox) DraftState(_ context.Context, id string) (workspace.DraftState, error) {
	state, ok := f.states[id]
	if !ok {
		return workspace.DraftState{}, filterguard.ErrNotFound
	}
	return state, nil
}

func (f *fakeMailbox) LabelMessage(_ context.Context, messageID, label string) error {
	if f.failLabel != nil {
		return f.failLabel
	}
	f.labels[messageID] = append(f.labels[messageID], label)
	return nil
}

type fakeTasks struct {
	mu        sync.Mutex
	existing  []tasks.Task
	created   []tasks.NewTask
	failAfter int
	collabs   []tasks.Collaborator
}

var errTrackerDown = errors.New("tracker down")

func (f *fakeTasks) ListTasks(context.Context, string) ([]tasks.Task, error) {
	return f.existing, nil
}

func (f *fakeTasks) CreateTask(_ context.Context, task tasks.NewTask) (tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.created) >= f.failAfter {
		return tasks.Task{}, errTrackerDown
	}
	f.created = append(f.created, task)
	return tasks.Task{ID: "t", Content: task.Content}, nil
}

func (f *fakeTasks) ListCollaborators(context.Context, string) ([]tasks.Collaborator, error) {
	return f.collabs, nil
}

type fakeAI struct {
	agenda     string
	agendaErr  error
	items      []reconcile.ActionItem
	extractErr error
	requests   []ai.AgendaRequest
}

func (f *fakeAI) GenerateAgenda(_ context.Context, req ai.AgendaRequest) (string, error) {
	f.requests = append(f.requests, req)
	return f.agenda, f.agendaErr
}

func (f *fakeAI) ExtractActionItems(context.Context, string) ([]reconcile.ActionItem, error) {
	return f.items, f.extractErr
}

type fakeMailer struct {
	sent         []string
	err          error
	unconfigured bool
}

func (f *fakeMailer) IsConfigured() bool {
	return !f.unconfigured
}

func (f *fakeMailer) SendAgenda(_ []string, _, meetingTitle string, _ time.Time, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, meetingTitle)
	return nil
}

type memoryDocs struct {
	mu   sync.Mutex
	docs map[string]string
}

func (m *memoryDocs) Read(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id], nil
}

func (m *memoryDocs) Write(_ context.Context, id, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id] = content
	return nil
}

type fakeIndex struct {
	sections []store.NoteSection
}

func (f *fakeIndex) IndexSection(_ context.Context, section store.NoteSection) error {
	f.sections = append(f.sections, section)
	return nil
}

type fakeMeetings struct {
	meetings []webhook.Meeting
}

func (f *fakeMeetings) ListRecent(context.Context, time.Time) ([]webhook.Meeting, error) {
	return f.meetings, nil
}

type harness struct {
	engine   *Engine
	redis    *miniredis.Miniredis
	durable  *ledger.MemoryDurable
	audit    *fakeAudit
	recorder *fakeRecorder
	calendar *fakeCalendar
	mailbox  *fakeMailbox
	tasks    *fakeTasks
	ai       *fakeAI
	mailer   *fakeMailer
	docs     *memoryDocs
	index    *fakeIndex
	meetings *fakeMeetings
}

func newHarness(t *testing.T, directory ...clients.Client) *harness {
	t.Helper()
	if len(directory) == 0 {
		directory = []clients.Client{acme}
	}
	mr := miniredis.RunT(t)
	cache, err := ledger.NewRedisCache("redis://"+mr.Addr(), ledger.DefaultTTLs(6*time.Hour, 72*time.Hour))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	h := &harness{
		redis:    mr,
		durable:  ledger.NewMemoryDurable(),
		audit:    &fakeAudit{},
		recorder: &fakeRecorder{},
		calendar: &fakeCalendar{},
		mailbox:  newFakeMailbox(),
		tasks:    &fakeTasks{},
		ai:       &fakeAI{agenda: "<h2>Agenda</h2>"},
		mailer:   &fakeMailer{},
		docs:     &memoryDocs{docs: map[string]string{}},
		index:    &fakeIndex{},
		meetings: &fakeMeetings{},
	}
	h.engine = New(Deps{
		Directory: staticDirectory(directory),
		Audit:     h.audit,
		Ledger:    ledger.New(h.durable, cache, discardLogger()),
		Recorder:  h.recorder,
		Calendar:  h.calendar,
		Mailbox:   h.mailbox,
		Mailer:    h.mailer,
		Tasks:     h.tasks,
		AI:        h.ai,
		Notes:     notes.NewNotebook(h.docs),
		Index:     h.index,
		Meetings:  h.meetings,
		Logger:    discardLogger(),
		Now:       func() time.Time { return testNow },
	}, Settings{
		OwnerEmail:    owner,
		Location:      time.UTC,
		BusinessStart: 8,
		BusinessEnd:   18,
		BusinessDays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		LogRetention:  90 * 24 * time.Hour,
	})
	return h
}
