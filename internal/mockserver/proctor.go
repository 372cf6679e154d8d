package mockserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/prova-engine/internal/model"
	"github.com/stemsi/prova-engine/internal/response"
	"github.com/stemsi/prova-engine/internal/validator"
)

// Proctor controls. The real platform gates these behind the proctor role;
// the practice server exposes them openly so the demo client and the
// integration tests can play proctor.

// ActivateRoom godoc
// POST /api/v1/proctor/rooms/:assignment_id/activate
func (s *Server) ActivateRoom(c *gin.Context) {
	id, ok := pathID(c, "assignment_id")
	if !ok {
		return
	}
	if err := s.store.ActivateRoom(id); err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": model.RoomStatusWaiting})
}

// StartRoom godoc
// POST /api/v1/proctor/rooms/:assignment_id/start
func (s *Server) StartRoom(c *gin.Context) {
	id, ok := pathID(c, "assignment_id")
	if !ok {
		return
	}
	if err := s.store.StartRoom(id); err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": model.RoomStatusStarted})
}

// EndRoom godoc
// POST /api/v1/proctor/rooms/:assignment_id/end
func (s *Server) EndRoom(c *gin.Context) {
	id, ok := pathID(c, "assignment_id")
	if !ok {
		return
	}
	if err := s.store.EndRoom(id); err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": model.RoomStatusEnded})
}

type kickRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=255"`
}

// KickParticipant godoc
// POST /api/v1/proctor/participants/:participant_id/kick
func (s *Server) KickParticipant(c *gin.Context) {
	id, ok := pathID(c, "participant_id")
	if !ok {
		return
	}
	var req kickRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if err := s.store.Kick(id, req.Reason); err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"kicked": true})
}

type proctorMessageRequest struct {
	Body string `json:"body" binding:"required,min=1,max=2000"`
}

// ProctorMessage godoc
// POST /api/v1/proctor/participants/:participant_id/message
func (s *Server) ProctorMessage(c *gin.Context) {
	id, ok := pathID(c, "participant_id")
	if !ok {
		return
	}
	var req proctorMessageRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if err := s.store.AppendMessage(id, model.MessageRoleProctor, req.Body, uuid.Nil); err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

// ListParticipants godoc
// GET /api/v1/proctor/rooms/:assignment_id/participants
func (s *Server) ListParticipants(c *gin.Context) {
	id, ok := pathID(c, "assignment_id")
	if !ok {
		return
	}
	participants, err := s.store.RoomParticipants(id)
	if err != nil {
		failFor(c, err)
		return
	}
	response.Success(c, http.StatusOK, participants)
}
