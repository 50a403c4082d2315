package webhook

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Normalize maps one upstream meeting object, in any of the shapes the
// recorder API has used, onto Meeting.
func Normalize(raw []byte) (Meeting, error) {
	if !gjson.ValidBytes(raw) {
		return Meeting{}, fmt.Errorf("normalize meeting: invalid json")
	}
	return normalizeResult(gjson.ParseBytes(raw)), nil
}

func normalizeResult(obj gjson.Result) Meeting {
	meeting := Meeting{
		Title:      strings.TrimSpace(first(obj, "title", "meeting_title", "name").String()),
		RawDate:    first(obj, "meeting_date", "recording_start_time", "scheduled_start_time", "created_at").String(),
		Transcript: flattenTranscript(first(obj, "transcript")),
		Summary:    flattenSummary(first(obj, "summary", "default_summary")),
		URL:        strings.TrimSpace(first(obj, "fathom_url", "url", "share_url", "recording_url").String()),
	}
	meeting.Date = parseDate(meeting.RawDate)

	people := first(obj, "calendar_invitees", "attendees", "participants")
	people.ForEach(func(_, person gjson.Result) bool {
		if person.Type == gjson.String {
			meeting.Participants = append(meeting.Participants, Participant{Email: person.String()})
			return true
		}
		meeting.Participants = append(meeting.Participants, Participant{
			Name:  first(person, "name", "display_name").String(),
			Email: first(person, "email", "email_address").String(),
		})
		return true
	})

	first(obj, "action_items").ForEach(func(_, item gjson.Result) bool {
		description := first(item, "description", "text").String()
		if item.Type == gjson.String {
			description = item.String()
		}
		assignee := item.Get("assignee")
		if assignee.IsObject() {
			assignee = first(assignee, "name", "email")
		}
		meeting.ActionItems = append(meeting.ActionItems, ActionItem{
			Description: description,
			Assignee:    assignee.String(),
			DueDate:     item.Get("due_date").String(),
		})
		return true
	})
	return meeting
}

func first(obj gjson.Result, paths ...string) gjson.Result {
	for _, path := range paths {
		if value := obj.Get(path); value.Exists() && value.Type != gjson.Null {
			return value
		}
	}
	return gjson.Result{}
}

// flattenTranscript accepts a string, an object with text, or an array of
// utterances with a speaker.
func flattenTranscript(value gjson.Result) string {
	switch {
	case value.IsArray():
		var lines []string
		value.ForEach(func(_, line gjson.Result) bool {
			text := first(line, "text", "content").String()
			if line.Type == gjson.String {
				text = line.String()
			}
			speaker := first(line, "speaker.display_name", "speaker.name").String()
			if raw := line.Get("speaker"); speaker == "" && raw.Type == gjson.String {
				speaker = raw.String()
			}
			if speaker != "" {
				text = speaker + ": " + text
			}
			lines = append(lines, text)
			return true
		})
		return strings.Join(lines, "\n")
	case value.IsObject():
		return first(value, "text", "plaintext", "markdown").String()
	default:
		return value.String()
	}
}

func flattenSummary(value gjson.Result) string {
	if value.IsObject() {
		return first(value, "markdown_formatted", "text", "markdown", "plaintext").String()
	}
	if value.IsArray() {
		var parts []string
		value.ForEach(func(_, part gjson.Result) bool {
			parts = append(parts, first(part, "text", "content").String())
			return true
		})
		return strings.Join(parts, "\n")
	}
	return value.String()
}
