// Package kafka carries contract lifecycle events and reminder/notification
// work between the API server and the worker.
package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

const (
	TopicContractCreated    = "contract.created"
	TopicContractUpdated    = "contract.updated"
	TopicContractSuperseded = "contract.superseded"
	TopicReminderDue        = "reminder.due"
	TopicNotificationEmail  = "notification.email"
)

// Topics lists every topic the worker subscribes to.
var Topics = []string{
	TopicContractCreated,
	TopicContractUpdated,
	TopicContractSuperseded,
	TopicReminderDue,
	TopicNotificationEmail,
}

// EventEnvelope is the wire format for every event.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// ContractEventPayload accompanies the contract.* topics.
type ContractEventPayload struct {
	ContractID         common.ID     `json:"contract_id"`
	OwnerID            common.UserID `json:"owner_id"`
	TransactionID      common.ID     `json:"transaction_id"`
	IsCounterOffer     bool          `json:"is_counter_offer"`
	CounterOfferNumber int           `json:"counter_offer_number,omitempty"`
	Status             string        `json:"status"`
}

// ReminderDuePayload accompanies reminder.due: one event per eligible
// milestone found by the daily scan.
type ReminderDuePayload struct {
	OwnerID         common.UserID `json:"owner_id"`
	ContractID      common.ID     `json:"contract_id"`
	Milestone       string        `json:"milestone"`
	Date            common.Date   `json:"date"`
	DaysUntil       int           `json:"days_until"`
	PropertyAddress string        `json:"property_address"`
}

// EmailPayload accompanies notification.email.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

// NewEventEnvelope wraps a payload in a versioned envelope.
func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the envelope payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 {
		return errors.New(errors.ErrCodeValidation, "event has no payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}
