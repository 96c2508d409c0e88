package model

import (
	"time"

	"gorm.io/datatypes"
)

// Call statuses as reported by the telephony platform. The set is open ended;
// only StatusEnded changes behavior, everything else is stored verbatim.
const (
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusEnded      = "ended"
)

// Call directions
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Termination reasons counted as an answered call
const (
	ReasonCompleted = "completed"
	ReasonAnswered  = "answered"
)

// Call represents one phone call in the PostgreSQL database. There is at most
// one row per external call ID; every webhook for that ID mutates the same row.
type Call struct {
	ID                string         `json:"id" gorm:"primaryKey;type:text"`
	ExternalCallID    string         `json:"external_call_id" gorm:"column:external_call_id;uniqueIndex;type:text" validate:"required"`
	OccurredAt        time.Time      `json:"occurred_at" gorm:"column:occurred_at"`
	Status            string         `json:"status" gorm:"type:text"`
	Reason            string         `json:"reason,omitempty" gorm:"type:text"` // set once the call has ended
	Direction         string         `json:"direction" gorm:"type:text;default:inbound"`
	CallerNumber      string         `json:"caller_number,omitempty" gorm:"column:caller_number;type:text"`
	CallerName        string         `json:"caller_name,omitempty" gorm:"column:caller_name;type:text"`
	DestinationNumber string         `json:"destination_number,omitempty" gorm:"column:destination_number;type:text"`
	DestinationUser   string         `json:"destination_user,omitempty" gorm:"column:destination_user;type:text"`
	ContactID         string         `json:"contact_id,omitempty" gorm:"column:contact_id;type:text"`
	ContactName       string         `json:"contact_name,omitempty" gorm:"column:contact_name;type:text"`
	Points            int            `json:"points" gorm:"column:points"`
	CreatedAt         time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt         time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
	LastPayload       datatypes.JSON `json:"last_payload,omitempty" gorm:"type:jsonb;column:last_payload"`
}

// TableName specifies the table name for the Call model.
func (Call) TableName() string {
	return "calls"
}

// ContactFound reports whether a CRM contact was resolved for this call.
func (c *Call) ContactFound() bool {
	return c.ContactID != ""
}

// CallPoints derives the point score for a call. Calls score only once they
// have ended; inbound is valued over outbound and answered over missed. Both
// "completed" and "answered" count as an answered call.
func CallPoints(direction, status, reason string) int {
	if status != StatusEnded {
		return 0
	}
	answered := reason == ReasonCompleted || reason == ReasonAnswered
	switch {
	case direction == DirectionInbound && answered:
		return 5
	case direction == DirectionOutbound && answered:
		return 2
	case direction == DirectionInbound:
		return 1
	default:
		return 0
	}
}
