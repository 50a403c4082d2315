package filterguard

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"clientflow/api/internal/clients"
)

// SyncReport counts what one Sync pass did.
type SyncReport struct {
	Clients        int `json:"clients"`
	LabelsEnsured  int `json:"labelsEnsured"`
	FiltersCreated int `json:"filtersCreated"`
	FiltersKept    int `json:"filtersKept"`
	FiltersRemoved int `json:"filtersRemoved"`
	Failures       int `json:"failures"`
}

// Syncer keeps one routing filter and three labels per onboarded client.
// All mutations go through the Guard.
type Syncer struct {
	guard    *Guard
	settings Settings
	logger   *slog.Logger
}

func NewSyncer(guard *Guard, settings Settings, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{guard: guard, settings: settings, logger: logger}
}

// RoutingQuery is the search expression that routes a client's mail.
func RoutingQuery(client clients.Client) string {
	var terms []string
	for _, contact := range client.Contacts {
		if contact = clients.NormalizeAddress(contact); contact != "" {
			terms = append(terms, contact)
		}
	}
	for _, domain := range client.Domains {
		if domain = clients.NormalizeAddress(domain); domain != "" {
			terms = append(terms, "@"+strings.TrimPrefix(domain, "@"))
		}
	}
	if len(terms) == 0 {
		return ""
	}
	return "from:(" + strings.Join(terms, " OR ") + ")"
}

func (s *Syncer) Sync(ctx context.Context, list []clients.Client) (SyncReport, error) {
	var report SyncReport

	filters, err := s.settings.ListFilters(ctx)
	if err != nil {
		return report, fmt.Errorf("list filters: %w", err)
	}
	labels, err := s.settings.ListLabels(ctx)
	if err != nil {
		return report, fmt.Errorf("list labels: %w", err)
	}
	labelNames := map[string]string{}
	for _, label := range labels {
		labelNames[label.ID] = label.Name
	}

	// Every directory client keeps its filters; only setup-complete ones
	// are synced.
	known := map[string]bool{}
	for _, client := range list {
		known[client.Labels.Base] = true
		if !client.SetupComplete {
			continue
		}
		report.Clients++
		if err := s.syncClient(ctx, client, filters, &report); err != nil {
			report.Failures++
			s.logger.Error("filter sync failed", "client", client.ID, "error", err)
		}
	}

	for _, filter := range filters {
		if !s.isStale(filter, labelNames, known) {
			continue
		}
		deleted, err := s.guard.DeleteFilter(ctx, filter.ID)
		if err != nil {
			report.Failures++
			s.logger.Error("remove stale filter failed", "filter", filter.ID, "error", err)
			continue
		}
		if deleted {
			report.FiltersRemoved++
		}
	}
	return report, nil
}

func (s *Syncer) syncClient(ctx context.Context, client clients.Client, filters []Filter, report *SyncReport) error {
	var base Label
	for _, name := range []string{client.Labels.Base, client.Labels.Summaries, client.Labels.Agendas} {
		label, ok, err := s.guard.EnsureLabel(ctx, name)
		if err != nil {
			return fmt.Errorf("ensure label %q: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("label %q is not a client label", name)
		}
		report.LabelsEnsured++
		if name == client.Labels.Base {
			base = label
		}
	}

	query := RoutingQuery(client)
	if query == "" {
		return nil
	}
	desired := Filter{Criteria: Criteria{Query: query}, AddLabelIDs: []string{base.ID}}

	// A replace whose delete failed leaves both the new and the old filter;
	// the first filter already carrying the query wins and the rest go.
	var current, outdated []Filter
	for _, existing := range filters {
		if !slices.Contains(existing.AddLabelIDs, base.ID) {
			continue
		}
		if existing.Criteria.Query == query {
			current = append(current, existing)
		} else {
			outdated = append(outdated, existing)
		}
	}

	switch {
	case len(current) > 0:
		report.FiltersKept++
		outdated = append(outdated, current[1:]...)
	case len(outdated) > 0:
		created, _, err := s.guard.ReplaceFilter(ctx, outdated[0].ID, desired)
		if created.ID != "" {
			report.FiltersCreated++
		}
		if err != nil {
			return fmt.Errorf("replace filter: %w", err)
		}
		if created.ID == "" {
			if err := s.create(ctx, desired, report); err != nil {
				return err
			}
		}
		outdated = outdated[1:]
	default:
		if err := s.create(ctx, desired, report); err != nil {
			return err
		}
	}

	for _, extra := range outdated {
		deleted, err := s.guard.DeleteFilter(ctx, extra.ID)
		if err != nil {
			return fmt.Errorf("remove duplicate filter: %w", err)
		}
		if deleted {
			report.FiltersRemoved++
		}
	}
	return nil
}

func (s *Syncer) create(ctx context.Context, desired Filter, report *SyncReport) error {
	_, created, err := s.guard.CreateFilter(ctx, desired)
	if err != nil {
		return fmt.Errorf("create filter: %w", err)
	}
	if created {
		report.FiltersCreated++
	}
	return nil
}

// isStale picks filters that route to a base client label no directory
// client owns any more. The guard still re-checks ownership before deleting.
func (s *Syncer) isStale(filter Filter, labelNames map[string]string, known map[string]bool) bool {
	for _, id := range filter.AddLabelIDs {
		name, ok := labelNames[id]
		if !ok {
			return false
		}
		if strings.HasPrefix(name, "Client: ") && !strings.Contains(name, "/") && !known[name] {
			return true
		}
	}
	return false
}
