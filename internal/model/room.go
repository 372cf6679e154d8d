package model

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus enumerates the server-reported state of a proctored room.
type RoomStatus string

const (
	RoomStatusInactive RoomStatus = "INACTIVE"
	RoomStatusWaiting  RoomStatus = "WAITING"
	RoomStatusStarted  RoomStatus = "STARTED"
	RoomStatusEnded    RoomStatus = "ENDED"
)

// MessageRole identifies the sender of a proctoring message.
type MessageRole string

const (
	MessageRoleProctor MessageRole = "PROCTOR"
	MessageRoleStudent MessageRole = "STUDENT"
)

// Participant is the ephemeral membership record for this device in a
// proctored session. It exists only while the room channel is open.
type Participant struct {
	ID           uuid.UUID `json:"id"`
	Ready        bool      `json:"ready"`
	ConnectedAt  time.Time `json:"connected_at"`
	Kicked       bool      `json:"kicked"`
	KickedReason string    `json:"kicked_reason,omitempty"`
}

// Message is one entry of the proctor-student messaging channel. Append-only
// from the client's perspective. ClientRef is a client-generated correlation
// id for outgoing messages; backends that echo it allow exact reconciliation
// of optimistic local inserts.
type Message struct {
	ID        uuid.UUID   `json:"id"`
	Role      MessageRole `json:"role"`
	Body      string      `json:"body"`
	CreatedAt time.Time   `json:"created_at"`
	Read      bool        `json:"read"`
	ClientRef uuid.UUID   `json:"client_ref,omitempty"`
}
