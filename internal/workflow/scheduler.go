package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	ErrBusy           = errors.New("workflow: trigger already running")
	ErrUnknownTrigger = errors.New("workflow: unknown trigger")
)

// Trigger is one periodic batch. Run must be safe to call again after a
// failure.
type Trigger struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (Report, error)
}

// Scheduler fires triggers on their intervals. A trigger never overlaps
// with itself: a tick that finds the previous batch still running is
// skipped.
type Scheduler struct {
	triggers map[string]Trigger
	locks    map[string]*sync.Mutex
	logger   *slog.Logger
}

func NewScheduler(logger *slog.Logger, triggers ...Trigger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		triggers: make(map[string]Trigger, len(triggers)),
		locks:    make(map[string]*sync.Mutex, len(triggers)),
		logger:   logger,
	}
	for _, trigger := range triggers {
		s.triggers[trigger.Name] = trigger
		s.locks[trigger.Name] = &sync.Mutex{}
	}
	return s
}

// Triggers is the engine's standard set.
func (e *Engine) Triggers(agenda, summaries, meetings, filters, prune time.Duration) []Trigger {
	return []Trigger{
		{Name: "agenda", Interval: agenda, Run: e.RunAgendas},
		{Name: "summaries", Interval: summaries, Run: e.RunSummaries},
		{Name: "meetings", Interval: meetings, Run: e.RunMeetings},
		{Name: "filters", Interval: filters, Run: e.RunFilterSync},
		{Name: "prune", Interval: prune, Run: e.RunPrune},
	}
}

func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.triggers))
	for name := range s.triggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunNow runs one trigger immediately unless it is already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) (Report, error) {
	trigger, ok := s.triggers[name]
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownTrigger, name)
	}
	lock := s.locks[name]
	if !lock.TryLock() {
		return Report{Trigger: name, Skipped: "already running"}, ErrBusy
	}
	defer lock.Unlock()

	started := time.Now()
	report, err := trigger.Run(ctx)
	attrs := []any{"trigger", name, "events", len(report.Events), "failed", report.Count(StateFailed), "duration", time.Since(started)}
	if err != nil {
		s.logger.Error("trigger failed", append(attrs, "error", err)...)
	} else {
		s.logger.Info("trigger finished", attrs...)
	}
	return report, err
}

// Start runs every trigger with a positive interval until ctx is done, then
// waits for in-flight batches to return.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, name := range s.Names() {
		trigger := s.triggers[name]
		if trigger.Interval <= 0 {
			s.logger.Info("trigger disabled", "trigger", name)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, trigger)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, trigger Trigger) {
	ticker := time.NewTicker(trigger.Interval)
	defer ticker.Stop()
	s.logger.Info("trigger scheduled", "trigger", trigger.Name, "interval", trigger.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunNow(ctx, trigger.Name); errors.Is(err, ErrBusy) {
				s.logger.Warn("trigger skipped, previous run still active", "trigger", trigger.Name)
			}
		}
	}
}
