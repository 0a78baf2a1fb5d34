package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxEventNameLength bounds event_name, counted in characters.
const MaxEventNameLength = 255

// Event is the canonical unit of data flowing through the pipeline.
// The Gateway builds it once; every later stage treats it as an immutable value.
type Event struct {
	// ID is assigned exactly once before publication and survives redelivery,
	// which keeps the worker's idempotency key stable.
	ID string `json:"id"`

	// OrgID always comes from the authenticated principal, never from the body.
	OrgID     string `json:"org_id"`
	ProjectID string `json:"project_id,omitempty"`

	EventName string `json:"event_name"`

	// UserID is optional; its presence drives the active-user aggregate.
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id"`

	Properties map[string]interface{} `json:"properties"`

	// Timestamp is when the event happened on the client. Aggregation buckets
	// by this value, not by bus delivery time.
	Timestamp time.Time `json:"timestamp"`
}

// RawEvent is the caller-supplied body before validation and defaulting.
// OrgID is accepted only so it can be ignored explicitly.
type RawEvent struct {
	ID         string                 `json:"id,omitempty"`
	OrgID      string                 `json:"org_id,omitempty"`
	ProjectID  string                 `json:"project_id,omitempty"`
	EventName  string                 `json:"event_name"`
	UserID     string                 `json:"user_id,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Timestamp  string                 `json:"timestamp,omitempty"`
}

// FieldError describes one rejected field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError is returned for user-correctable input problems.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Normalize validates a raw event and fills defaults: id, session_id and
// timestamp when absent, and an empty properties map.
// It performs no I/O. Tenant fields are left for the caller to stamp.
func Normalize(raw RawEvent, now time.Time) (*Event, error) {
	verr := &ValidationError{}

	checkEventName(verr, raw.EventName)
	checkText(verr, "user_id", raw.UserID)
	checkProperties(verr, raw.Properties)
	checkOptionalUUID(verr, "id", raw.ID)
	checkOptionalUUID(verr, "session_id", raw.SessionID)
	checkOptionalUUID(verr, "project_id", raw.ProjectID)

	ts := now.UTC()
	if raw.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
		switch {
		case err != nil:
			verr.add("timestamp", "must be an ISO-8601 instant")
		case parsed.IsZero():
			verr.add("timestamp", "must not be the zero instant")
		default:
			ts = parsed.UTC()
		}
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}

	evt := &Event{
		ID:         raw.ID,
		ProjectID:  raw.ProjectID,
		EventName:  raw.EventName,
		UserID:     raw.UserID,
		SessionID:  raw.SessionID,
		Properties: raw.Properties,
		Timestamp:  ts,
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.SessionID == "" {
		evt.SessionID = uuid.NewString()
	}
	if evt.Properties == nil {
		evt.Properties = map[string]interface{}{}
	}
	return evt, nil
}

// Validate checks a fully-built event. The worker runs it again before
// persisting anything read off the bus.
func (e *Event) Validate() error {
	verr := &ValidationError{}

	if _, err := uuid.Parse(e.ID); err != nil {
		verr.add("id", "must be a UUID")
	}
	if e.OrgID == "" {
		verr.add("org_id", "is required")
	}
	checkEventName(verr, e.EventName)
	checkText(verr, "org_id", e.OrgID)
	checkText(verr, "user_id", e.UserID)
	checkProperties(verr, e.Properties)
	checkOptionalUUID(verr, "session_id", e.SessionID)
	checkOptionalUUID(verr, "project_id", e.ProjectID)
	if e.Timestamp.IsZero() {
		verr.add("timestamp", "is required")
	}

	return verr.orNil()
}

func checkEventName(verr *ValidationError, name string) {
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		verr.add("event_name", "is required")
	case n > MaxEventNameLength:
		verr.add("event_name", fmt.Sprintf("must be at most %d characters", MaxEventNameLength))
	default:
		checkText(verr, "event_name", name)
	}
}

// checkText rejects NUL, which neither TEXT nor JSONB columns can store.
func checkText(verr *ValidationError, field, value string) {
	if strings.IndexByte(value, 0) >= 0 {
		verr.add(field, "must not contain NUL characters")
	}
}

func checkProperties(verr *ValidationError, props map[string]interface{}) {
	if containsNUL(props) {
		verr.add("properties", "must not contain NUL characters")
	}
}

func containsNUL(v interface{}) bool {
	switch t := v.(type) {
	case string:
		return strings.IndexByte(t, 0) >= 0
	case map[string]interface{}:
		for k, elem := range t {
			if strings.IndexByte(k, 0) >= 0 || containsNUL(elem) {
				return true
			}
		}
	case []interface{}:
		for _, elem := range t {
			if containsNUL(elem) {
				return true
			}
		}
	}
	return false
}

// Unmarshal decodes one JSON value, keeping numbers as json.Number so
// property values pass through without float64 rounding.
func Unmarshal(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after top-level JSON value")
	}
	return nil
}

func checkOptionalUUID(verr *ValidationError, field, value string) {
	if value == "" {
		return
	}
	if _, err := uuid.Parse(value); err != nil {
		verr.add(field, "must be a UUID")
	}
}
