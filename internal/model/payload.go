package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gitlab.com/kantoorbase/api/call-events-service/internal/apperrors"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/utils"
)

// CallEventPayload is the strictly-typed form of one inbound webhook event.
// The telephony platform delivers loosely shaped JSON (fields top-level or
// nested under a "body" wrapper, several alternate key names per field);
// ParseCallEventPayload flattens that into this struct with one fixed
// precedence order per field.
type CallEventPayload struct {
	CallID            string          `json:"call_id" validate:"required"`
	Timestamp         time.Time       `json:"timestamp"`
	Status            string          `json:"status"`
	Reason            string          `json:"reason,omitempty"`
	Direction         string          `json:"direction" validate:"omitempty,oneof=inbound outbound"`
	CallerNumber      string          `json:"caller_number,omitempty"`
	CallerName        string          `json:"caller_name,omitempty"`
	DestinationNumber string          `json:"destination_number,omitempty"`
	DestinationUser   string          `json:"destination_user,omitempty"`
	Raw               json.RawMessage `json:"-"` // original body, persisted on the call row
}

// ParseCallEventPayload normalizes a raw webhook body into a CallEventPayload.
// receivedAt is used when the event carries no usable timestamp. A missing
// call_id yields apperrors.ErrValidation.
func ParseCallEventPayload(raw []byte, receivedAt time.Time) (CallEventPayload, error) {
	var top map[string]interface{}
	if err := json.Unmarshal(raw, &top); err != nil {
		return CallEventPayload{}, fmt.Errorf("%w: malformed JSON body: %v", apperrors.ErrValidation, err)
	}

	// Fields may live under a "body" wrapper; that wrapper wins over top-level.
	bags := []map[string]interface{}{}
	if body, ok := top["body"].(map[string]interface{}); ok {
		bags = append(bags, body)
	}
	bags = append(bags, top)

	payload := CallEventPayload{
		CallID:            stringField(bags, "call_id", "callId"),
		Status:            stringField(bags, "status", "state"),
		Reason:            stringField(bags, "reason", "termination_reason"),
		Direction:         stringField(bags, "direction"),
		CallerNumber:      firstOf(nestedField(bags, "caller", "number"), stringField(bags, "caller_number", "from")),
		CallerName:        firstOf(nestedField(bags, "caller", "name"), stringField(bags, "caller_name")),
		DestinationNumber: firstOf(nestedField(bags, "destination", "number"), stringField(bags, "destination_number", "to")),
		DestinationUser:   firstOf(nestedField(bags, "destination", "user"), stringField(bags, "target_user")),
		Raw:               json.RawMessage(raw),
	}

	if payload.CallID == "" {
		return CallEventPayload{}, fmt.Errorf("%w: call_id is required", apperrors.ErrValidation)
	}

	if ts, ok := utils.ParseTimestamp(stringField(bags, "timestamp", "start_time")); ok {
		payload.Timestamp = ts
	} else {
		payload.Timestamp = receivedAt.UTC()
	}

	if payload.Direction == "" {
		payload.Direction = DirectionInbound
	}

	return payload, nil
}

// LookupNumber returns the phone number of the external party: the caller for
// inbound calls, the destination for outbound ones.
func (p CallEventPayload) LookupNumber() string {
	if p.Direction == DirectionOutbound {
		return p.DestinationNumber
	}
	return p.CallerNumber
}

// stringField returns the first non-empty string among keys, checked per bag
// in order.
func stringField(bags []map[string]interface{}, keys ...string) string {
	for _, bag := range bags {
		for _, key := range keys {
			if s, ok := bag[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// nestedField returns bag[object][field] when that path holds a string.
func nestedField(bags []map[string]interface{}, object, field string) string {
	for _, bag := range bags {
		if obj, ok := bag[object].(map[string]interface{}); ok {
			if s, ok := obj[field].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
