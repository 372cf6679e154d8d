package mockserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/prova-engine/internal/backend"
	"github.com/stemsi/prova-engine/internal/model"
	"github.com/stemsi/prova-engine/internal/response"
	"github.com/stemsi/prova-engine/internal/validator"
)

func failFor(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, errSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptSubmitted)
	case errors.Is(err, errRoomInactive):
		response.Fail(c, http.StatusConflict, response.ErrRoomNotActive)
	case errors.Is(err, errParticipantOut):
		response.Fail(c, http.StatusNotFound, response.ErrParticipantGone)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// GetSession godoc
// GET /api/v1/sessions/:session_id
func (s *Server) GetSession(c *gin.Context) {
	id, ok := pathID(c, "session_id")
	if !ok {
		return
	}
	session, err := s.store.Session(id)
	if err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, session)
}

// GetSessionStatus godoc
// GET /api/v1/sessions/:session_id/status
func (s *Server) GetSessionStatus(c *gin.Context) {
	id, ok := pathID(c, "session_id")
	if !ok {
		return
	}
	status, err := s.store.SessionStatus(id)
	if err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": status})
}

type startAttemptRequest struct {
	AssignmentID *uuid.UUID `json:"assignment_id" binding:"omitempty"`
}

// StartAttempt godoc
// POST /api/v1/sessions/:session_id/attempts
// Begins or resumes the attempt (idempotent per session).
func (s *Server) StartAttempt(c *gin.Context) {
	id, ok := pathID(c, "session_id")
	if !ok {
		return
	}
	var req startAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	a, resumed, err := s.store.StartAttempt(id)
	if err != nil {
		failFor(c, err)
		return
	}
	out := backend.StartAttemptResult{
		AttemptID: a.ID,
		Resumed:   resumed,
	}
	if resumed {
		out.SavedAnswers = a.Answers
		out.SavedElapsedSeconds = a.ElapsedSeconds
		out.SavedSectionIndex = a.SectionIndex
	}
	response.Success(c, http.StatusOK, out)
}

// SaveProgress godoc
// PUT /api/v1/attempts/:attempt_id/progress
func (s *Server) SaveProgress(c *gin.Context) {
	id, ok := pathID(c, "attempt_id")
	if !ok {
		return
	}
	var req backend.Progress
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if err := s.store.SaveProgress(id, req.Answers, req.ElapsedSeconds, req.SectionIndex); err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
// Terminal; a second submission is rejected.
func (s *Server) Submit(c *gin.Context) {
	id, ok := pathID(c, "attempt_id")
	if !ok {
		return
	}
	var req backend.Submission
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if err := s.store.Submit(id, req.Answers, req.TotalTimeSeconds); err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"submitted": true})
}

// JoinRoom godoc
// POST /api/v1/rooms/:assignment_id/join
func (s *Server) JoinRoom(c *gin.Context) {
	id, ok := pathID(c, "assignment_id")
	if !ok {
		return
	}
	p, status, startedAt, err := s.store.Join(id)
	if err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, backend.JoinResult{
		ParticipantID: p.ID,
		RoomStatus:    status,
		StartedAt:     startedAt,
	})
}

// SetReady godoc
// POST /api/v1/participants/:participant_id/ready
func (s *Server) SetReady(c *gin.Context) {
	id, ok := pathID(c, "participant_id")
	if !ok {
		return
	}
	if err := s.store.SetReady(id); err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"ready": true})
}

// Disconnect godoc
// POST /api/v1/participants/:participant_id/disconnect
func (s *Server) Disconnect(c *gin.Context) {
	id, ok := pathID(c, "participant_id")
	if !ok {
		return
	}
	if err := s.store.Disconnect(id); err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"disconnected": true})
}

type heartbeatRequest struct {
	QuestionIndex int `json:"question_index" binding:"min=0"`
	AnsweredCount int `json:"answered_count" binding:"min=0"`
}

// Heartbeat godoc
// POST /api/v1/participants/:participant_id/heartbeat
func (s *Server) Heartbeat(c *gin.Context) {
	id, ok := pathID(c, "participant_id")
	if !ok {
		return
	}
	var req heartbeatRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	view, err := s.store.Heartbeat(id, req.QuestionIndex, req.AnsweredCount)
	if err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, backend.HeartbeatResult{
		Kicked:            view.Kicked,
		KickedReason:      view.KickedReason,
		RoomStatus:        view.Status,
		StartedAt:         view.StartedAt,
		Ready:             view.Ready,
		ConnectedCount:    view.Connected,
		TotalParticipants: view.Total,
		UnreadMessageIDs:  view.UnreadIDs,
	})
}

// GetMessages godoc
// GET /api/v1/participants/:participant_id/messages
func (s *Server) GetMessages(c *gin.Context) {
	id, ok := pathID(c, "participant_id")
	if !ok {
		return
	}
	msgs, err := s.store.Messages(id)
	if err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Body      string    `json:"body" binding:"required,min=1,max=2000"`
	ClientRef uuid.UUID `json:"client_ref" binding:"omitempty"`
}

// SendMessage godoc
// POST /api/v1/participants/:participant_id/messages
// The client correlation id is stored and echoed on subsequent polls.
func (s *Server) SendMessage(c *gin.Context) {
	id, ok := pathID(c, "participant_id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if err := s.store.AppendMessage(id, model.MessageRoleStudent, req.Body, req.ClientRef); err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

type markReadRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required"`
}

// MarkMessagesRead godoc
// POST /api/v1/participants/:participant_id/messages/read
// Idempotent; unknown ids are ignored.
func (s *Server) MarkMessagesRead(c *gin.Context) {
	id, ok := pathID(c, "participant_id")
	if !ok {
		return
	}
	var req markReadRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if err := s.store.MarkRead(id, req.IDs); err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"read": true})
}
