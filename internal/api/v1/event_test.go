package v1

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNormalize_EventNameBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "empty rejected", input: "", wantErr: true},
		{name: "single char accepted", input: "a"},
		{name: "255 chars accepted", input: strings.Repeat("x", 255)},
		{name: "256 chars rejected", input: strings.Repeat("x", 256), wantErr: true},
		{name: "255 multibyte chars accepted", input: strings.Repeat("é", 255)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			evt, err := Normalize(RawEvent{EventName: tc.input}, fixedNow)
			if tc.wantErr {
				var verr *ValidationError
				require.True(t, errors.As(err, &verr))
				require.Equal(t, "event_name", verr.Fields[0].Field)
				require.Nil(t, evt)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.input, evt.EventName)
		})
	}
}

func TestNormalize_FillsDefaults(t *testing.T) {
	evt, err := Normalize(RawEvent{EventName: "signup", UserID: "u1"}, fixedNow)
	require.NoError(t, err)

	_, err = uuid.Parse(evt.ID)
	require.NoError(t, err)
	_, err = uuid.Parse(evt.SessionID)
	require.NoError(t, err)
	require.Equal(t, fixedNow, evt.Timestamp)
	require.NotNil(t, evt.Properties)
	require.Empty(t, evt.Properties)
	require.Equal(t, "u1", evt.UserID)
}

func TestNormalize_KeepsSuppliedValues(t *testing.T) {
	id := uuid.NewString()
	session := uuid.NewString()
	project := uuid.NewString()

	evt, err := Normalize(RawEvent{
		ID:         id,
		ProjectID:  project,
		EventName:  "click",
		SessionID:  session,
		Properties: map[string]interface{}{"button": "buy"},
		Timestamp:  "2024-03-01T23:59:59+02:00",
	}, fixedNow)
	require.NoError(t, err)

	require.Equal(t, id, evt.ID)
	require.Equal(t, session, evt.SessionID)
	require.Equal(t, project, evt.ProjectID)
	require.Equal(t, "buy", evt.Properties["button"])
	require.Equal(t, time.Date(2024, 3, 1, 21, 59, 59, 0, time.UTC), evt.Timestamp)
}

func TestNormalize_RejectsMalformedFields(t *testing.T) {
	_, err := Normalize(RawEvent{
		EventName: "click",
		SessionID: "not-a-uuid",
		ProjectID: "also-bad",
		Timestamp: "yesterday",
	}, fixedNow)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	fields := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	require.ElementsMatch(t, []string{"session_id", "project_id", "timestamp"}, fields)
	require.Contains(t, err.Error(), "session_id: must be a UUID")
}

func TestNormalize_IgnoresCallerOrgID(t *testing.T) {
	evt, err := Normalize(RawEvent{EventName: "click", OrgID: "spoofed"}, fixedNow)
	require.NoError(t, err)
	require.Empty(t, evt.OrgID)
}

func TestEvent_Validate(t *testing.T) {
	valid := func() *Event {
		return &Event{
			ID:         uuid.NewString(),
			OrgID:      "org-a",
			EventName:  "click",
			SessionID:  uuid.NewString(),
			Properties: map[string]interface{}{},
			Timestamp:  fixedNow,
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(e *Event)
		field  string
	}{
		{name: "missing id", mutate: func(e *Event) { e.ID = "" }, field: "id"},
		{name: "missing org", mutate: func(e *Event) { e.OrgID = "" }, field: "org_id"},
		{name: "empty name", mutate: func(e *Event) { e.EventName = "" }, field: "event_name"},
		{name: "bad session", mutate: func(e *Event) { e.SessionID = "nope" }, field: "session_id"},
		{name: "zero timestamp", mutate: func(e *Event) { e.Timestamp = time.Time{} }, field: "timestamp"},
		{name: "nul in org", mutate: func(e *Event) { e.OrgID = "org\x00a" }, field: "org_id"},
		{name: "nul in user", mutate: func(e *Event) { e.UserID = "u\x001" }, field: "user_id"},
		{name: "nul in property", mutate: func(e *Event) { e.Properties = map[string]interface{}{"k": "a\x00b"} }, field: "properties"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			evt := valid()
			tc.mutate(evt)

			var verr *ValidationError
			require.True(t, errors.As(evt.Validate(), &verr))
			require.Equal(t, tc.field, verr.Fields[0].Field)
		})
	}
}

func TestNormalize_IsRepeatable(t *testing.T) {
	raw := RawEvent{EventName: "click", Timestamp: "2024-03-01T10:00:00Z"}

	first, err := Normalize(raw, fixedNow)
	require.NoError(t, err)
	second, err := Normalize(raw, fixedNow)
	require.NoError(t, err)

	require.Equal(t, first.Timestamp, second.Timestamp)
	require.Equal(t, first.EventName, second.EventName)
}

func TestNormalize_RejectsZeroTimestamp(t *testing.T) {
	evt, err := Normalize(RawEvent{EventName: "click", Timestamp: "0001-01-01T00:00:00Z"}, fixedNow)
	require.Nil(t, evt)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "timestamp", verr.Fields[0].Field)
	require.Contains(t, err.Error(), "zero instant")
}

func TestNormalize_RejectsNUL(t *testing.T) {
	tests := []struct {
		name  string
		raw   RawEvent
		field string
	}{
		{name: "event name", raw: RawEvent{EventName: "sign\x00up"}, field: "event_name"},
		{name: "user id", raw: RawEvent{EventName: "click", UserID: "u\x00"}, field: "user_id"},
		{name: "property value", raw: RawEvent{EventName: "click", Properties: map[string]interface{}{"k": "a\x00b"}}, field: "properties"},
		{name: "property key", raw: RawEvent{EventName: "click", Properties: map[string]interface{}{"k\x00": 1}}, field: "properties"},
		{name: "nested value", raw: RawEvent{EventName: "click", Properties: map[string]interface{}{
			"items": []interface{}{map[string]interface{}{"sku": "x\x00"}},
		}}, field: "properties"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.raw, fixedNow)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, tc.field, verr.Fields[0].Field)
		})
	}
}

func TestUnmarshal_KeepsNumbersExact(t *testing.T) {
	var raw RawEvent
	require.NoError(t, Unmarshal([]byte(`{"event_name":"buy","properties":{"order_id":9007199254740993,"amount":12.50}}`), &raw))
	require.Equal(t, json.Number("9007199254740993"), raw.Properties["order_id"])
	require.Equal(t, json.Number("12.50"), raw.Properties["amount"])
}

func TestUnmarshal_RejectsTrailingData(t *testing.T) {
	var raw RawEvent
	require.Error(t, Unmarshal([]byte(`{"event_name":"a"} {"event_name":"b"}`), &raw))
	require.Error(t, Unmarshal([]byte(`{"event_name":"a"} trailing`), &raw))
	require.NoError(t, Unmarshal([]byte("{\"event_name\":\"a\"}\n"), &raw))
}
