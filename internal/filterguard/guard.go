// Package filterguard gates every mutation of mailbox labels and filters.
// Only resources that classify as system-owned at the moment of mutation are
// ever changed; everything else is left alone and the refusal is logged.
package filterguard

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"

	"clientflow/api/internal/apperr"
)

var ErrNotFound = errors.New("resource not found")

type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Criteria struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Query   string `json:"query,omitempty"`
}

type Filter struct {
	ID             string   `json:"id,omitempty"`
	Criteria       Criteria `json:"criteria"`
	AddLabelIDs    []string `json:"addLabelIds,omitempty"`
	RemoveLabelIDs []string `json:"removeLabelIds,omitempty"`
}

// Settings is the mailbox configuration API. Get calls return ErrNotFound
// for ids that do not exist.
type Settings interface {
	ListLabels(ctx context.Context) ([]Label, error)
	GetLabel(ctx context.Context, id string) (Label, error)
	CreateLabel(ctx context.Context, name string) (Label, error)
	DeleteLabel(ctx context.Context, id string) error
	ListFilters(ctx context.Context) ([]Filter, error)
	GetFilter(ctx context.Context, id string) (Filter, error)
	CreateFilter(ctx context.Context, filter Filter) (Filter, error)
	DeleteFilter(ctx context.Context, id string) error
}

var clientLabelPattern = regexp.MustCompile(`^Client: [^/]+(/Meeting Summaries|/Meeting Agendas)?$`)

// OwnedLabelName reports whether a label name belongs to the automation.
func OwnedLabelName(name string, briefing []string) bool {
	if clientLabelPattern.MatchString(name) {
		return true
	}
	for _, label := range briefing {
		if label != "" && name == label {
			return true
		}
	}
	return false
}

type Guard struct {
	settings Settings
	briefing []string
	logger   *slog.Logger
	refused  atomic.Int64
}

func New(settings Settings, briefingLabels []string, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	briefing := make([]string, 0, len(briefingLabels))
	for _, label := range briefingLabels {
		if label = strings.TrimSpace(label); label != "" {
			briefing = append(briefing, label)
		}
	}
	return &Guard{settings: settings, briefing: briefing, logger: logger}
}

// IsSystemOwned resolves the filter's target labels now. It is owned when at
// least one target resolves to an owned name. A filter with no targets, or
// with any target that cannot be resolved, is foreign.
func (g *Guard) IsSystemOwned(ctx context.Context, filter Filter) bool {
	owned, _ := g.classifyFilter(ctx, filter)
	return owned
}

func (g *Guard) classifyFilter(ctx context.Context, filter Filter) (bool, string) {
	if len(filter.AddLabelIDs) == 0 {
		return false, "filter has no target label"
	}
	owned := false
	for _, id := range filter.AddLabelIDs {
		label, err := g.settings.GetLabel(ctx, id)
		if err != nil {
			return false, "target label " + id + " could not be resolved"
		}
		if OwnedLabelName(label.Name, g.briefing) {
			owned = true
		}
	}
	if !owned {
		return false, "no target label is system-owned"
	}
	return true, ""
}

// Refusals counts mutations refused since the guard was created.
func (g *Guard) Refusals() int64 {
	return g.refused.Load()
}

func (g *Guard) refuse(operation, resourceID, reason string) {
	g.refused.Add(1)
	violation := &apperr.SafetyViolation{Operation: operation, ResourceID: resourceID, Reason: reason}
	g.logger.Warn("filter guard refused mutation",
		"operation", operation,
		"resource", resourceID,
		"reason", reason,
		"error", violation.Error(),
	)
}

// CreateFilter creates the filter only if its targets are system-owned.
func (g *Guard) CreateFilter(ctx context.Context, filter Filter) (Filter, bool, error) {
	if owned, reason := g.classifyFilter(ctx, filter); !owned {
		g.refuse("create filter", strings.Join(filter.AddLabelIDs, ","), reason)
		return Filter{}, false, nil
	}
	created, err := g.settings.CreateFilter(ctx, filter)
	if err != nil {
		return Filter{}, false, err
	}
	return created, true, nil
}

// DeleteFilter re-reads the filter and deletes it only if it is still
// system-owned. A filter that no longer exists is reported as not deleted.
func (g *Guard) DeleteFilter(ctx context.Context, id string) (bool, error) {
	current, err := g.settings.GetFilter(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		g.refuse("delete filter", id, "filter could not be read: "+err.Error())
		return false, nil
	}
	if owned, reason := g.classifyFilter(ctx, current); !owned {
		g.refuse("delete filter", id, reason)
		return false, nil
	}
	if err := g.settings.DeleteFilter(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// ReplaceFilter swaps an owned filter for a new owned one. Filters are
// immutable upstream, so this creates the replacement before deleting the
// original.
func (g *Guard) ReplaceFilter(ctx context.Context, id string, replacement Filter) (Filter, bool, error) {
	current, err := g.settings.GetFilter(ctx, id)
	if err != nil {
		g.refuse("replace filter", id, "filter could not be read: "+err.Error())
		return Filter{}, false, nil
	}
	if owned, reason := g.classifyFilter(ctx, current); !owned {
		g.refuse("replace filter", id, reason)
		return Filter{}, false, nil
	}
	if owned, reason := g.classifyFilter(ctx, replacement); !owned {
		g.refuse("replace filter", id, "replacement: "+reason)
		return Filter{}, false, nil
	}
	created, err := g.settings.CreateFilter(ctx, replacement)
	if err != nil {
		return Filter{}, false, err
	}
	deleted, err := g.DeleteFilter(ctx, id)
	if err != nil {
		return created, false, err
	}
	return created, deleted, nil
}

// DeleteLabel re-reads the label and deletes it only if its name is owned.
func (g *Guard) DeleteLabel(ctx context.Context, id string) (bool, error) {
	label, err := g.settings.GetLabel(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		g.refuse("delete label", id, "label could not be read: "+err.Error())
		return false, nil
	}
	if !OwnedLabelName(label.Name, g.briefing) {
		g.refuse("delete label", id, "label "+label.Name+" is not system-owned")
		return false, nil
	}
	if err := g.settings.DeleteLabel(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureLabel returns the label with the given owned name, creating it if
// needed. Names outside the owned patterns are refused.
func (g *Guard) EnsureLabel(ctx context.Context, name string) (Label, bool, error) {
	if !OwnedLabelName(name, g.briefing) {
		g.refuse("create label", name, "name is not system-owned")
		return Label{}, false, nil
	}
	labels, err := g.settings.ListLabels(ctx)
	if err != nil {
		return Label{}, false, err
	}
	for _, label := range labels {
		if label.Name == name {
			return label, true, nil
		}
	}
	created, err := g.settings.CreateLabel(ctx, name)
	if err != nil {
		return Label{}, false, err
	}
	return created, true, nil
}
