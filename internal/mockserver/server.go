// Package mockserver is an in-memory practice backend implementing the exam
// platform API surface the engine depends on. cmd/mockserver runs it
// standalone for development; the integration tests run it in-process.
package mockserver

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/prova-engine/internal/response"
)

// Server wires the in-memory store to the HTTP surface.
type Server struct {
	store *Store
	log   zerolog.Logger
}

// New creates a practice server around the given store.
func New(store *Store, log zerolog.Logger) *Server {
	return &Server{
		store: store,
		log:   log.With().Str("component", "mockserver").Logger(),
	}
}

// Store exposes the backing store for seeding and test assertions.
func (s *Server) Store() *Store {
	return s.store
}

// Router configures all route groups. ginMode is one of gin's mode strings;
// allowedOrigins empty permits all origins (dev default).
func (s *Server) Router(ginMode string, allowedOrigins []string) *gin.Engine {
	gin.SetMode(ginMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.GET("/sessions/:session_id", s.GetSession)
		api.GET("/sessions/:session_id/status", s.GetSessionStatus)
		api.POST("/sessions/:session_id/attempts", s.StartAttempt)
		api.PUT("/attempts/:attempt_id/progress", s.SaveProgress)
		api.POST("/attempts/:attempt_id/submit", s.Submit)

		api.POST("/rooms/:assignment_id/join", s.JoinRoom)
		api.POST("/participants/:participant_id/ready", s.SetReady)
		api.POST("/participants/:participant_id/disconnect", s.Disconnect)
		api.POST("/participants/:participant_id/heartbeat", s.Heartbeat)
		api.GET("/participants/:participant_id/messages", s.GetMessages)
		api.POST("/participants/:participant_id/messages", s.SendMessage)
		api.POST("/participants/:participant_id/messages/read", s.MarkMessagesRead)

		proctor := api.Group("/proctor")
		{
			proctor.POST("/rooms/:assignment_id/activate", s.ActivateRoom)
			proctor.POST("/rooms/:assignment_id/start", s.StartRoom)
			proctor.POST("/rooms/:assignment_id/end", s.EndRoom)
			proctor.GET("/rooms/:assignment_id/participants", s.ListParticipants)
			proctor.POST("/participants/:participant_id/kick", s.KickParticipant)
			proctor.POST("/participants/:participant_id/message", s.ProctorMessage)
		}
	}

	return router
}
