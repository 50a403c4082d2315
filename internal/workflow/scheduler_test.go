package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunNowRefusesOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewScheduler(discardLogger(), Trigger{
		Name: "slow",
		Run: func(ctx context.Context) (Report, error) {
			close(started)
			<-release
			return Report{Trigger: "slow"}, nil
		},
	})

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), "slow")
		done <- err
	}()
	<-started

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
}

func TestRunNowUnknownTrigger(t *testing.T) {
	s := NewScheduler(discardLogger())
	_, err := s.RunNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownTrigger)
}

func TestStartTicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan struct{}, 10)
	s := NewScheduler(discardLogger(),
		Trigger{Name: "fast", Interval: 5 * time.Millisecond, Run: func(context.Context) (Report, error) {
			select {
			case ticks <- struct{}{}:
			default:
			}
			return Report{}, errors.New("keeps failing")
		}},
		Trigger{Name: "off", Run: func(context.Context) (Report, error) {
			t.Error("disabled trigger ran")
			return Report{}, nil
		}},
	)

	stopped := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(stopped)
	}()
	<-ticks
	<-ticks
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestEngineTriggerNames(t *testing.T) {
	h := newHarness(t)
	s := NewScheduler(discardLogger(), h.engine.Triggers(time.Hour, time.Minute, time.Minute, time.Hour, time.Hour)...)
	assert.Equal(t, []string{"agenda", "filters", "meetings", "prune", "summaries"}, s.Names())
}

func TestPruneUsesRetentionWindow(t *testing.T) {
	h := newHarness(t)
	report, err := h.engine.RunPrune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-90*24*time.Hour), h.recorder.pruned)
	assert.Equal(t, int64(3), report.Detail.(map[string]any)["deleted"])
}

func TestFilterSyncWithoutWorkspaceIsConfigurationError(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.RunFilterSync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filter sync")
}
