package model

import "time"

// EventType represents the kind of message pushed to streaming subscribers
type EventType string

const (
	// EventConnected acknowledges a freshly opened stream connection
	EventConnected EventType = "connected"
	// EventCallRinging covers every non-final call transition
	EventCallRinging EventType = "call-ringing"
	// EventCallEnded is sent once the platform reports the call as ended
	EventCallEnded EventType = "call-ended"
)

// EventKindForStatus maps a raw platform status to the notification kind
// subscribers see. Any status other than "ended" (ringing, in-progress, ...)
// collapses to EventCallRinging.
func EventKindForStatus(status string) EventType {
	if status == StatusEnded {
		return EventCallEnded
	}
	return EventCallRinging
}

// CallEvent is the transient unit broadcast to subscribers. It exists only as
// a message between publish and delivery; nothing is retained for replay.
type CallEvent struct {
	Type EventType     `json:"type"`
	Data CallEventData `json:"data"`
}

// CallEventData is the display snapshot of a call carried by a CallEvent.
type CallEventData struct {
	CallID            string    `json:"callId"`
	Timestamp         time.Time `json:"timestamp"`
	Status            string    `json:"status"`
	Reason            string    `json:"reason,omitempty"`
	Direction         string    `json:"direction"`
	CallerNumber      string    `json:"callerNumber,omitempty"`
	CallerName        string    `json:"callerName,omitempty"`
	DestinationNumber string    `json:"destinationNumber,omitempty"`
	ContactFound      bool      `json:"contactFound"`
	ContactID         string    `json:"contactId,omitempty"`
	ContactName       string    `json:"contactName,omitempty"`
	Points            int       `json:"points"`
}

// NewCallEvent builds the broadcast event for a persisted call.
func NewCallEvent(call *Call) CallEvent {
	return CallEvent{
		Type: EventKindForStatus(call.Status),
		Data: CallEventData{
			CallID:            call.ExternalCallID,
			Timestamp:         call.OccurredAt,
			Status:            call.Status,
			Reason:            call.Reason,
			Direction:         call.Direction,
			CallerNumber:      call.CallerNumber,
			CallerName:        call.CallerName,
			DestinationNumber: call.DestinationNumber,
			ContactFound:      call.ContactFound(),
			ContactID:         call.ContactID,
			ContactName:       call.ContactName,
			Points:            call.Points,
		},
	}
}
