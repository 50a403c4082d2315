package workflow

import (
	"context"
	"fmt"
	"time"

	"clientflow/api/internal/apperr"
	"clientflow/api/internal/store"
)

// RunFilterSync brings mailbox labels and routing filters in line with the
// directory. Every mutation goes through the filter guard.
func (e *Engine) RunFilterSync(ctx context.Context) (Report, error) {
	r := e.newRun("filters")
	if e.Syncer == nil {
		return *r.report, apperr.Config("filter sync", "CLIENTFLOW_WORKSPACE_URL")
	}
	list, err := e.Directory.ListClients(ctx)
	if err != nil {
		return *r.report, fmt.Errorf("load client directory: %w", err)
	}
	sync, err := e.Syncer.Sync(ctx, list)
	r.report.Detail = sync

	status := store.LogSuccess
	details := fmt.Sprintf("%d clients, %d labels ensured, %d filters created, %d kept, %d removed, %d failures",
		sync.Clients, sync.LabelsEnsured, sync.FiltersCreated, sync.FiltersKept, sync.FiltersRemoved, sync.Failures)
	if err != nil {
		status = store.LogError
		details += ": " + err.Error()
	} else if sync.Failures > 0 {
		status = store.LogError
	}
	e.record(ctx, r, "filter-sync", "", details, status)
	e.Logger.Info("filter sync finished", "report", sync, "error", err)
	return *r.report, err
}

// RunPrune deletes processing-log rows older than the retention window. The
// ledger is never pruned.
func (e *Engine) RunPrune(ctx context.Context) (Report, error) {
	r := e.newRun("prune")
	if e.settings.LogRetention <= 0 {
		r.report.Skipped = "retention disabled"
		return *r.report, nil
	}
	cutoff := e.Now().Add(-e.settings.LogRetention).UTC()
	deleted, err := e.Recorder.PruneProcessingLog(ctx, cutoff)
	if err != nil {
		return *r.report, fmt.Errorf("prune processing log: %w", err)
	}
	r.report.Detail = map[string]any{"deleted": deleted, "before": cutoff.Format(time.RFC3339)}
	e.Logger.Info("processing log pruned", "deleted", deleted, "before", cutoff)
	return *r.report, nil
}
