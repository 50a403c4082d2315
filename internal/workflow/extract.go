package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"clientflow/api/internal/reconcile"
	"clientflow/api/internal/webhook"
)

var (
	actionItemsHeading = regexp.MustCompile(`(?i)^\s*(?:#+\s*)?(?:\*\*|__)?\s*action items\s*:?\s*(?:\*\*|__)?\s*:?\s*$`)
	numberedLine       = regexp.MustCompile(`^\s*\d+[.)]\s+(.+?)\s*$`)
	ownerSuffix        = regexp.MustCompile(`(?i)^(.*?)\s*\((?:owner|assignee)\s*:\s*([^)]+)\)$`)
	htmlBreak          = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</li>|</h\d>`)
	htmlTag            = regexp.MustCompile(`<[^>]+>`)
)

// ExtractFallback reads the numbered list under an "Action Items" heading.
// It is used whenever the model is unavailable or its output is rejected.
// Blank lines inside the list are allowed; the first other line ends it.
func ExtractFallback(text string) []reconcile.ActionItem {
	if strings.Contains(text, "<") {
		text = htmlTag.ReplaceAllString(htmlBreak.ReplaceAllString(text, "\n"), "")
	}
	var items []reconcile.ActionItem
	inList := false
	for _, line := range strings.Split(text, "\n") {
		if !inList {
			inList = actionItemsHeading.MatchString(line)
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		match := numberedLine.FindStringSubmatch(line)
		if match == nil {
			break
		}
		item := reconcile.ActionItem{Description: match[1]}
		if owner := ownerSuffix.FindStringSubmatch(match[1]); owner != nil {
			item.Description = strings.TrimSpace(owner[1])
			item.Assignee = strings.TrimSpace(owner[2])
		}
		if item.Description != "" {
			items = append(items, item)
		}
	}
	return items
}

// extractItems prefers the model and never fails: any model error falls back
// to ExtractFallback.
func (e *Engine) extractItems(ctx context.Context, text string) []reconcile.ActionItem {
	if e.AI != nil {
		items, err := e.AI.ExtractActionItems(ctx, text)
		if err == nil {
			return items
		}
		e.Logger.Warn("action item extraction fell back to parser", "error", err)
	}
	return ExtractFallback(text)
}

// renderItems writes items in the form ExtractFallback reads back.
func renderItems(b *strings.Builder, items []reconcile.ActionItem) {
	b.WriteString("Action Items\n")
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s", i+1, item.Description)
		if item.Assignee != "" {
			fmt.Fprintf(b, " (Owner: %s)", item.Assignee)
		}
		b.WriteString("\n")
	}
}

func draftBody(m webhook.Meeting, items []reconcile.ActionItem) string {
	var b strings.Builder
	b.WriteString(m.Title)
	if !m.Date.IsZero() {
		b.WriteString(" (" + m.Date.Format("Mon 2 Jan 2006") + ")")
	}
	b.WriteString("\n\n")
	if summary := strings.TrimSpace(m.Summary); summary != "" {
		b.WriteString("Summary\n" + summary + "\n\n")
	}
	if len(items) > 0 {
		renderItems(&b, items)
	}
	if url := strings.TrimSpace(m.URL); url != "" {
		b.WriteString("\nRecording: " + url + "\n")
	}
	return b.String()
}

// itemFingerprint names the step marker for one action item, so re-extracted
// items with the same text map to the same marker.
func itemFingerprint(description string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.Join(strings.Fields(description), " "))))
	return hex.EncodeToString(sum[:8])
}

// addressOf accepts "Name <a@b>" as well as a bare address.
func addressOf(raw string) string {
	if parsed, err := mail.ParseAddress(raw); err == nil {
		return strings.ToLower(parsed.Address)
	}
	return strings.ToLower(strings.TrimSpace(raw))
}
