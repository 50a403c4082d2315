package webhook

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const meetingSchemaURL = "https://clientflow.local/schemas/meeting-webhook.json"

const meetingSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["meeting_title"],
  "properties": {
    "meeting_title": {"type": "string", "minLength": 1},
    "meeting_date": {"type": "string"},
    "transcript": {"type": ["string", "null"]},
    "summary": {"type": ["string", "null"]},
    "fathom_url": {"type": ["string", "null"]},
    "action_items": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "description": {"type": "string"},
          "assignee": {"type": ["string", "null"]},
          "due_date": {"type": ["string", "null"]}
        }
      }
    },
    "participants": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": ["string", "null"]},
          "email": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func meetingPayloadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(meetingSchema))
		if err != nil {
			schemaErr = fmt.Errorf("parse webhook schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(meetingSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add webhook schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(meetingSchemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidatePayload checks a raw webhook body against the meeting schema.
func ValidatePayload(raw []byte) error {
	schema, err := meetingPayloadSchema()
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("invalid meeting payload: %w", err)
	}
	return nil
}
