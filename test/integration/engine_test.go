package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/prova-engine/internal/backend/httpapi"
	"github.com/stemsi/prova-engine/internal/exam"
	"github.com/stemsi/prova-engine/internal/mockserver"
	"github.com/stemsi/prova-engine/internal/model"
	"github.com/stemsi/prova-engine/internal/validator"
)

func init() {
	validator.Setup()
}

// harness runs the practice server in-process and points a real HTTP client
// at it, so the whole engine stack is exercised over the wire.
type harness struct {
	store        *mockserver.Store
	ts           *httptest.Server
	client       *httpapi.Client
	sessionID    uuid.UUID
	assignmentID uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := mockserver.NewStore()
	sessionID, assignmentID := mockserver.SeedDemo(store)

	srv := mockserver.New(store, zerolog.Nop())
	ts := httptest.NewServer(srv.Router(gin.TestMode, nil))
	t.Cleanup(ts.Close)

	client := httpapi.New(ts.URL+"/api/v1", "integration-token", 5*time.Second, zerolog.Nop())
	return &harness{
		store:        store,
		ts:           ts,
		client:       client,
		sessionID:    sessionID,
		assignmentID: assignmentID,
	}
}

// proctor drives a proctor control endpoint, standing in for the real
// proctor console.
func (h *harness) proctor(t *testing.T, path string, body string) {
	t.Helper()
	var req *http.Request
	var err error
	url := h.ts.URL + "/api/v1/proctor" + path
	if body == "" {
		req, err = http.NewRequest(http.MethodPost, url, nil)
	} else {
		req, err = http.NewRequest(http.MethodPost, url, strings.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		t.Fatalf("build proctor request: %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("proctor %s: %v", path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("proctor %s: status %d", path, res.StatusCode)
	}
}

func fastOpts() exam.Options {
	return exam.Options{
		TickInterval:              5 * time.Millisecond,
		AutosaveInterval:          20 * time.Millisecond,
		HeartbeatInterval:         10 * time.Millisecond,
		ActivationPollInterval:    10 * time.Millisecond,
		MessagePollOpen:           10 * time.Millisecond,
		MessagePollClosed:         20 * time.Millisecond,
		MessageMatchWindow:        15 * time.Second,
		HeartbeatFailureThreshold: 3,
		CallTimeout:               2 * time.Second,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(3 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestProctoredExamFullFlow(t *testing.T) {
	h := newHarness(t)
	ctrl := exam.NewController(h.client, zerolog.Nop(), fastOpts())
	defer ctrl.Close(context.Background())

	if err := ctrl.Start(context.Background(), h.sessionID, &h.assignmentID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ctrl.State() != exam.StateWaitingRoom {
		t.Fatalf("state %s, want WAITING_ROOM", ctrl.State())
	}
	room := ctrl.Room()

	// The room is inactive until the proctor opens it.
	waitFor(t, 2*time.Second, func() bool { return room.State() == exam.RoomWaitingInactive })
	h.proctor(t, fmt.Sprintf("/rooms/%s/activate", h.assignmentID), "")
	waitFor(t, 2*time.Second, func() bool { return room.State() == exam.RoomWaitingForReady })

	if err := room.SetReady(context.Background()); err != nil {
		t.Fatalf("SetReady: %v", err)
	}
	if room.State() != exam.RoomWaitingForStart {
		t.Fatalf("room state %s after ready, want WAITING_FOR_START", room.State())
	}

	h.proctor(t, fmt.Sprintf("/rooms/%s/start", h.assignmentID), "")
	waitFor(t, 2*time.Second, func() bool { return ctrl.State() == exam.StateInProgress })

	// Answer section 1 (two single-choice questions) and conclude it.
	session := ctrl.Session()
	ctrl.Select(session.Questions[0].ID, session.Questions[0].Options[0].ID)
	ctrl.Select(session.Questions[1].ID, session.Questions[1].Options[1].ID)
	ctrl.ToggleFlag(session.Questions[1].ID)
	if err := ctrl.AdvanceSection(); err != nil {
		t.Fatalf("AdvanceSection: %v", err)
	}
	if err := ctrl.GoToQuestion(0); err != exam.ErrSectionLocked {
		t.Fatalf("back-navigation = %v, want ErrSectionLocked", err)
	}

	// Section 2 is free text.
	ctrl.SetText(session.Questions[2].ID, "Water evaporates, condenses and falls as rain.")

	// Proctor messaging: a broadcast shows up as an unread badge, opening the
	// chat clears it, and a student reply round-trips through the poll.
	pid := room.Participant().ID
	h.proctor(t, fmt.Sprintf("/participants/%s/message", pid), `{"body":"15 minutes remaining"}`)
	waitFor(t, 2*time.Second, func() bool { return room.UnreadCount() == 1 })

	room.OpenChat(context.Background())
	waitFor(t, 2*time.Second, func() bool { return room.UnreadCount() == 0 })

	room.Send(context.Background(), "understood, thank you")
	waitFor(t, 2*time.Second, func() bool {
		for _, m := range room.Messages() {
			if m.Role == model.MessageRoleStudent && m.Body == "understood, thank you" {
				return true
			}
		}
		return false
	})
	room.CloseChat()

	if err := ctrl.RequestSubmit(context.Background()); err != nil {
		t.Fatalf("RequestSubmit: %v", err)
	}
	if ctrl.State() != exam.StateCompleted {
		t.Fatalf("state %s after submit, want COMPLETED", ctrl.State())
	}
	if err := ctrl.RequestSubmit(context.Background()); err != exam.ErrSubmitted {
		t.Fatalf("second submit = %v, want ErrSubmitted", err)
	}

	attemptID, ok := h.store.AttemptForSession(h.sessionID)
	if !ok {
		t.Fatal("no attempt recorded")
	}
	attempt, _ := h.store.Attempt(attemptID)
	if !attempt.Submitted {
		t.Fatal("attempt not submitted server-side")
	}
	answered := 0
	for _, a := range attempt.Answers {
		if a.OptionID != nil || (a.FreeText != nil && *a.FreeText != "") {
			answered++
		}
	}
	if answered != 3 {
		t.Fatalf("server recorded %d answered questions, want 3", answered)
	}
}

func TestOpenSessionResumeAfterRestart(t *testing.T) {
	h := newHarness(t)

	// Seed an open, resumable, non-sectioned session next to the demo one.
	q := model.Question{
		ID:     uuid.New(),
		Prompt: "Pick one",
		Type:   model.QuestionTypeSingleChoice,
		Options: []model.Option{
			{ID: uuid.New(), Text: "left"},
			{ID: uuid.New(), Text: "right"},
		},
	}
	session := &model.Session{
		ID:              uuid.New(),
		Title:           "Open Practice",
		DurationMinutes: 30,
		Questions:       []model.Question{q},
		AccessMode:      model.AccessModeOpen,
		Resumable:       true,
	}
	h.store.AddSession(session)

	first := exam.NewController(h.client, zerolog.Nop(), fastOpts())
	if err := first.Start(context.Background(), session.ID, nil); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	first.Select(q.ID, q.Options[0].ID)

	// Wait for at least one autosave to land, then drop the controller the
	// way a crashed process would.
	attemptID, _ := h.store.AttemptForSession(session.ID)
	waitFor(t, 2*time.Second, func() bool {
		a, ok := h.store.Attempt(attemptID)
		return ok && len(a.Answers) > 0 && a.ElapsedSeconds > 0
	})
	first.Close(context.Background())

	second := exam.NewController(h.client, zerolog.Nop(), fastOpts())
	defer second.Close(context.Background())
	if err := second.Start(context.Background(), session.ID, nil); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	a, _ := second.Answers().Get(q.ID)
	if a.OptionID == nil || *a.OptionID != q.Options[0].ID {
		t.Fatal("resumed attempt lost the saved answer")
	}
	global, _ := second.Remaining()
	if global >= 30*60 {
		t.Fatalf("remaining %d did not account for saved elapsed time", global)
	}

	if err := second.RequestSubmit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// A submitted attempt cannot restart.
	third := exam.NewController(h.client, zerolog.Nop(), fastOpts())
	if err := third.Start(context.Background(), session.ID, nil); err == nil {
		t.Fatal("restart after submission succeeded")
	}
	if third.State() != exam.StateFailed {
		t.Fatalf("state %s after refused restart, want FAILED", third.State())
	}
}

func TestProctorKickEndsAttempt(t *testing.T) {
	h := newHarness(t)
	ctrl := exam.NewController(h.client, zerolog.Nop(), fastOpts())
	defer ctrl.Close(context.Background())

	if err := ctrl.Start(context.Background(), h.sessionID, &h.assignmentID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	room := ctrl.Room()

	h.proctor(t, fmt.Sprintf("/rooms/%s/activate", h.assignmentID), "")
	waitFor(t, 2*time.Second, func() bool { return room.State() == exam.RoomWaitingForReady })

	pid := room.Participant().ID
	h.proctor(t, fmt.Sprintf("/participants/%s/kick", pid), `{"reason":"inactivity"}`)

	waitFor(t, 2*time.Second, func() bool { return room.State() == exam.RoomKicked })
	p := room.Participant()
	if p.KickedReason != "inactivity" {
		t.Fatalf("kicked reason %q, want inactivity", p.KickedReason)
	}
}
