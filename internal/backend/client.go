// Package backend defines the remote collaborator the exam engine depends on.
// Transport, authentication and serialization are the implementation's
// concern; the engine programs against this interface only.
package backend

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/prova-engine/internal/model"
)

// StartAttemptResult is the outcome of beginning or resuming an attempt.
// Resumed=true means the Saved* fields are populated and authoritative.
type StartAttemptResult struct {
	AttemptID           uuid.UUID      `json:"attempt_id"`
	Resumed             bool           `json:"resumed"`
	SavedAnswers        []model.Answer `json:"saved_answers,omitempty"`
	SavedElapsedSeconds int            `json:"saved_elapsed_seconds,omitempty"`
	SavedSectionIndex   *int           `json:"saved_section_index,omitempty"`
}

// Progress is one autosave snapshot. Re-sending the same snapshot is harmless.
type Progress struct {
	AttemptID      uuid.UUID      `json:"attempt_id"`
	Answers        []model.Answer `json:"answers"`
	ElapsedSeconds int            `json:"elapsed_seconds"`
	SectionIndex   *int           `json:"section_index,omitempty"`
}

// Submission is the final answer snapshot. Submit must be called at most once
// per attempt; the engine guarantees that on its side.
type Submission struct {
	AttemptID        uuid.UUID      `json:"attempt_id"`
	Answers          []model.Answer `json:"answers"`
	TotalTimeSeconds int            `json:"total_time_seconds"`
}

// HeartbeatStatus is the student-side payload of a proctoring heartbeat.
type HeartbeatStatus struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	QuestionIndex int       `json:"question_index"`
	AnsweredCount int       `json:"answered_count"`
}

// HeartbeatResult carries everything the server tells a participant in one
// heartbeat round trip. Kicked and RoomStatus==Ended are authoritative
// terminal signals; StartedAt, when set, is the server-issued start timestamp.
type HeartbeatResult struct {
	Kicked            bool             `json:"kicked"`
	KickedReason      string           `json:"kicked_reason,omitempty"`
	RoomStatus        model.RoomStatus `json:"room_status"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	Ready             bool             `json:"ready"`
	ConnectedCount    int              `json:"connected_count"`
	TotalParticipants int              `json:"total_participants"`
	UnreadMessageIDs  []uuid.UUID      `json:"unread_message_ids,omitempty"`
}

// JoinResult is the outcome of joining a proctored room.
type JoinResult struct {
	ParticipantID uuid.UUID        `json:"participant_id"`
	RoomStatus    model.RoomStatus `json:"room_status"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
}

// Client is the backend collaborator surface the engine needs. All calls are
// blocking and honor ctx cancellation; callers run them off the tick loops.
type Client interface {
	// GetSession fetches the session metadata (questions, sections, mode).
	GetSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error)

	// GetSessionStatus polls room activation for a proctored session.
	GetSessionStatus(ctx context.Context, sessionID uuid.UUID) (model.RoomStatus, error)

	// StartAttempt begins or resumes an attempt. assignmentID is set for
	// assigned and proctored sessions.
	StartAttempt(ctx context.Context, sessionID uuid.UUID, assignmentID *uuid.UUID) (*StartAttemptResult, error)

	// SaveProgress persists an in-progress snapshot. Idempotent.
	SaveProgress(ctx context.Context, p Progress) error

	// Submit finalizes the attempt. Terminal.
	Submit(ctx context.Context, s Submission) error

	// Heartbeat exchanges presence for a proctored participant.
	Heartbeat(ctx context.Context, hb HeartbeatStatus) (*HeartbeatResult, error)

	// JoinSession obtains a participant identity for a proctored room.
	JoinSession(ctx context.Context, assignmentID uuid.UUID) (*JoinResult, error)

	// SetReady marks the participant ready in the waiting room.
	SetReady(ctx context.Context, participantID uuid.UUID) error

	// Disconnect notifies the backend of a voluntary departure.
	Disconnect(ctx context.Context, participantID uuid.UUID) error

	// GetMessages returns the full message log for the participant.
	GetMessages(ctx context.Context, participantID uuid.UUID) ([]model.Message, error)

	// SendMessage posts a student message. clientRef is echoed back by
	// backends that support correlation ids.
	SendMessage(ctx context.Context, participantID uuid.UUID, body string, clientRef uuid.UUID) error

	// MarkMessagesRead marks the given message ids as read. Idempotent.
	MarkMessagesRead(ctx context.Context, participantID uuid.UUID, ids []uuid.UUID) error
}
