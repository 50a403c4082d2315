// Package notes appends delimited sections to per-client notes documents and
// reads back the most recent one.
package notes

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	KindSummary = "summary"
	KindAgenda  = "agenda"
)

// Section is one appended block. Sections are bracketed by begin/end markers
// carrying the same id, so a duplicate append produces a second complete
// block rather than a corrupted one.
type Section struct {
	ID    string
	Kind  string
	Title string
	Date  time.Time
	Body  string
}

var beginPattern = regexp.MustCompile(`<!-- clientflow:begin id=(\S+) kind=(\S+) date=(\S*) -->`)

func beginMarker(s Section) string {
	date := ""
	if !s.Date.IsZero() {
		date = s.Date.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("<!-- clientflow:begin id=%s kind=%s date=%s -->", s.ID, s.Kind, date)
}

func endMarker(id string) string {
	return fmt.Sprintf("<!-- clientflow:end id=%s -->", id)
}

// Render formats a section for appending.
func Render(s Section) string {
	title := strings.Join(strings.Fields(s.Title), " ")
	var b strings.Builder
	b.WriteString(beginMarker(s))
	b.WriteString("\n## ")
	b.WriteString(title)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(s.Body))
	b.WriteString("\n")
	b.WriteString(endMarker(s.ID))
	b.WriteString("\n")
	return b.String()
}

// Parse returns every complete section in document order. A begin marker
// without its matching end marker is ignored.
func Parse(doc string) []Section {
	var sections []Section
	for _, loc := range beginPattern.FindAllStringSubmatchIndex(doc, -1) {
		id := doc[loc[2]:loc[3]]
		kind := doc[loc[4]:loc[5]]
		rawDate := doc[loc[6]:loc[7]]

		rest := doc[loc[1]:]
		end := strings.Index(rest, endMarker(id))
		if end < 0 {
			continue
		}
		inner := strings.TrimSpace(rest[:end])

		section := Section{ID: id, Kind: kind}
		if rawDate != "" {
			if parsed, err := time.Parse(time.RFC3339, rawDate); err == nil {
				section.Date = parsed
			}
		}
		if heading, body, ok := strings.Cut(inner, "\n"); ok && strings.HasPrefix(heading, "## ") {
			section.Title = strings.TrimPrefix(heading, "## ")
			section.Body = strings.TrimSpace(body)
		} else if strings.HasPrefix(inner, "## ") {
			section.Title = strings.TrimPrefix(inner, "## ")
		} else {
			section.Body = inner
		}
		sections = append(sections, section)
	}
	return sections
}

// MostRecent returns the last complete section of the given kind, or of any
// kind when kind is empty. Documents are append-only so position is recency.
func MostRecent(doc, kind string) (Section, bool) {
	sections := Parse(doc)
	for i := len(sections) - 1; i >= 0; i-- {
		if kind == "" || sections[i].Kind == kind {
			return sections[i], true
		}
	}
	return Section{}, false
}
