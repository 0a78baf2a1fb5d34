package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	v1 "github.com/pulseops-lab/pulseops/internal/api/v1"
	"github.com/pulseops-lab/pulseops/internal/auth"
	httperr "github.com/pulseops-lab/pulseops/internal/core/errors"
	"github.com/pulseops-lab/pulseops/internal/core/trace"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgPublishFailed  = "Failed to publish event"
	msgNoPrincipal    = "Request is not authenticated"
)

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
	reason     string // metrics label
}

func (e *ingestionError) Error() string {
	return e.message
}

// batchRequest is the body of POST /events/batch. Elements stay raw so a bad
// element can be reported by index.
type batchRequest struct {
	Events []json.RawMessage `json:"events"`
}

// batchFieldErrors reports the rejected fields of one batch element.
type batchFieldErrors struct {
	Index  int             `json:"index"`
	Fields []v1.FieldError `json:"fields"`
}

// IngestHandler accepts one event and publishes it.
func (s *Service) IngestHandler(c *gin.Context) {
	start := time.Now()

	evt, ierr := s.buildSingle(c)
	if ierr == nil {
		ierr = s.publish(c, []*v1.Event{evt})
	}
	if ierr != nil {
		s.recorder.IngestionError(KindSingle, ierr.reason)
		writeError(c, ierr)
		return
	}

	s.recorder.EventsIngested(KindSingle, 1)
	s.recorder.IngestionDuration(KindSingle, time.Since(start))

	slog.Debug("[Ingestion] Accepted event",
		"event_id", evt.ID,
		"org_id", evt.OrgID,
		"event_name", evt.EventName,
		"trace_id", trace.FromGin(c))

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "event_id": evt.ID})
}

// IngestBatchHandler accepts 1..MaxBatchSize events and publishes them in one
// bus call. The response is all-or-nothing.
func (s *Service) IngestBatchHandler(c *gin.Context) {
	start := time.Now()

	events, ierr := s.buildBatch(c)
	if ierr == nil {
		ierr = s.publish(c, events)
	}
	if ierr != nil {
		s.recorder.IngestionError(KindBatch, ierr.reason)
		writeError(c, ierr)
		return
	}

	s.recorder.EventsIngested(KindBatch, len(events))
	s.recorder.IngestionDuration(KindBatch, time.Since(start))

	slog.Info("[Ingestion] Accepted batch",
		"count", len(events),
		"org_id", events[0].OrgID,
		"trace_id", trace.FromGin(c))

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "count": len(events)})
}

func (s *Service) buildSingle(c *gin.Context) (*v1.Event, *ingestionError) {
	principal, ierr := principalFrom(c)
	if ierr != nil {
		return nil, ierr
	}

	body, ierr := s.readBody(c)
	if ierr != nil {
		return nil, ierr
	}

	var raw v1.RawEvent
	if err := v1.Unmarshal(body, &raw); err != nil {
		slog.Warn("[Ingestion] Invalid JSON body received", "error", err, "payload_size", len(body))
		return nil, invalidJSON(nil)
	}

	evt, err := v1.Normalize(raw, s.now())
	if err != nil {
		return nil, validationFailed(err, nil)
	}
	stamp(evt, principal)
	return evt, nil
}

func (s *Service) buildBatch(c *gin.Context) ([]*v1.Event, *ingestionError) {
	principal, ierr := principalFrom(c)
	if ierr != nil {
		return nil, ierr
	}

	body, ierr := s.readBody(c)
	if ierr != nil {
		return nil, ierr
	}

	var req batchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		slog.Warn("[Ingestion] Invalid JSON batch received", "error", err, "payload_size", len(body))
		return nil, invalidJSON(nil)
	}

	if n := len(req.Events); n < MinBatchSize || n > MaxBatchSize {
		return nil, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpBatchSizeError,
			message:    "Batch must contain between 1 and 1000 events",
			details:    gin.H{"min": MinBatchSize, "max": MaxBatchSize, "received": n},
			reason:     "batch_size",
		}
	}

	now := s.now()
	events := make([]*v1.Event, 0, len(req.Events))
	var invalid []batchFieldErrors

	for i, elem := range req.Events {
		var raw v1.RawEvent
		if err := v1.Unmarshal(elem, &raw); err != nil {
			return nil, invalidJSON(gin.H{"index": i})
		}

		evt, err := v1.Normalize(raw, now)
		if err != nil {
			var verr *v1.ValidationError
			if !errors.As(err, &verr) {
				return nil, validationFailed(err, gin.H{"index": i})
			}
			invalid = append(invalid, batchFieldErrors{Index: i, Fields: verr.Fields})
			continue
		}
		stamp(evt, principal)
		events = append(events, evt)
	}

	if len(invalid) > 0 {
		return nil, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    "One or more events failed validation",
			details:    gin.H{"events": invalid},
			reason:     "validation",
		}
	}

	return events, nil
}

// readBody enforces the body cap before any parsing.
func (s *Service) readBody(c *gin.Context) ([]byte, *ingestionError) {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("[Ingestion] Failed to read request body", "error", err)
		return nil, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
			reason:     "read_body",
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("[Ingestion] Request body exceeds maximum size", "max", maxBytes)
		return nil, &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpPayloadTooLarge,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
			reason: "payload_too_large",
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	return bodyBytes, nil
}

// publish hands events to the bus. No retry here: the caller owns retrying a 500.
func (s *Service) publish(c *gin.Context, events []*v1.Event) *ingestionError {
	if err := s.publisher.Publish(c.Request.Context(), trace.FromGin(c), events); err != nil {
		slog.Error("[Ingestion] Failed to publish events",
			"error", err,
			"count", len(events),
			"org_id", events[0].OrgID,
			"trace_id", trace.FromGin(c))
		return &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpPublishFailedError,
			message:    msgPublishFailed,
			reason:     "publish",
		}
	}
	return nil
}

// stamp attributes the event to the authenticated tenant. A project bound to
// the credential wins over one supplied in the body.
func stamp(evt *v1.Event, p auth.Principal) {
	evt.OrgID = p.OrgID
	if p.ProjectID != "" {
		evt.ProjectID = p.ProjectID
	}
}

func principalFrom(c *gin.Context) (auth.Principal, *ingestionError) {
	p, ok := auth.PrincipalFrom(c)
	if !ok || p.OrgID == "" {
		slog.Error("[Ingestion] Route reached without a principal; is the auth middleware mounted?")
		return auth.Principal{}, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgNoPrincipal,
			reason:     "no_principal",
		}
	}
	return p, nil
}

func invalidJSON(details interface{}) *ingestionError {
	return &ingestionError{
		statusCode: http.StatusBadRequest,
		errorType:  httperr.HttpInvalidJsonError,
		message:    msgInvalidJSON,
		details:    details,
		reason:     "invalid_json",
	}
}

func validationFailed(err error, details interface{}) *ingestionError {
	ierr := &ingestionError{
		statusCode: http.StatusBadRequest,
		errorType:  httperr.HttpValidationError,
		message:    err.Error(),
		details:    details,
		reason:     "validation",
	}
	var verr *v1.ValidationError
	if errors.As(err, &verr) && details == nil {
		ierr.message = "Event failed validation"
		ierr.details = gin.H{"fields": verr.Fields}
	}
	return ierr
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
