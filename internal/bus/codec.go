// Package bus carries events from the gateway to the aggregation worker
// over a watermill transport (kafka, amqp or an in-process channel).
package bus

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	v1 "github.com/pulseops-lab/pulseops/internal/api/v1"
	apperrors "github.com/pulseops-lab/pulseops/internal/core/errors"
)

// Message metadata keys.
const (
	// MetadataPartitionKey holds the org id. The kafka marshaler uses it as
	// the record key, so one tenant always lands on one partition.
	MetadataPartitionKey = "partition_key"
	MetadataTraceID      = "trace_id"
	MetadataEventName    = "event_name"
)

// Encode wraps an event in a watermill message whose UUID is the event id,
// so a redelivered message still names the same event.
func Encode(evt *v1.Event, traceID string) (*message.Message, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", evt.ID, err)
	}

	msg := message.NewMessage(evt.ID, payload)
	msg.Metadata.Set(MetadataPartitionKey, evt.OrgID)
	msg.Metadata.Set(MetadataEventName, evt.EventName)
	if traceID != "" {
		msg.Metadata.Set(MetadataTraceID, traceID)
	}
	return msg, nil
}

// Decode turns a delivered payload back into a validated event. Every
// failure wraps ErrPoisonMessage: the bytes will never decode on redelivery.
func Decode(msg *message.Message) (*v1.Event, error) {
	var evt v1.Event
	if err := v1.Unmarshal(msg.Payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: undecodable payload in message %s: %v", apperrors.ErrPoisonMessage, msg.UUID, err)
	}
	if err := evt.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid event in message %s: %v", apperrors.ErrPoisonMessage, msg.UUID, err)
	}
	return &evt, nil
}
