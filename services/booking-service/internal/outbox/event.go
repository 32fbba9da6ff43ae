package outbox

import (
	"encoding/json"
	"time"
)

// Event is the envelope written to outbox_events. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventBookingCreated       = "booking.created.v1"
	EventBookingStatusChanged = "booking.status_changed.v1"
	EventProfileCreated       = "accounts.profile.created.v1"
	EventIdentitySession      = "identity.session.v1"
)

// NewEvent marshals payload and stamps it with occurred_at.
func NewEvent(aggregateType, aggregateID, eventType string, payload map[string]any) (Event, error) {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	if _, ok := body["occurred_at"]; !ok {
		body["occurred_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
