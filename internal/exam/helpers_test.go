package exam

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/prova-engine/internal/backend"
	"github.com/stemsi/prova-engine/internal/model"
)

// fakeClient is an in-memory backend.Client with per-call hooks and counters.
type fakeClient struct {
	mu sync.Mutex

	session      *model.Session
	attempt      backend.StartAttemptResult
	roomStatus   model.RoomStatus
	heartbeatRes backend.HeartbeatResult
	heartbeatErr error
	messages     []model.Message

	submitErr   error
	submitBlock chan struct{} // when set, Submit waits for it to close

	submitCalls    int
	saveCalls      int
	lastSubmission backend.Submission
	lastProgress   backend.Progress
	disconnects    int
	readCalls      [][]uuid.UUID
	sentBodies     []string
}

func newFakeClient(session *model.Session) *fakeClient {
	return &fakeClient{
		session:    session,
		attempt:    backend.StartAttemptResult{AttemptID: uuid.New()},
		roomStatus: model.RoomStatusWaiting,
	}
}

func (f *fakeClient) GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *fakeClient) GetSessionStatus(ctx context.Context, id uuid.UUID) (model.RoomStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roomStatus, nil
}

func (f *fakeClient) StartAttempt(ctx context.Context, sessionID uuid.UUID, assignmentID *uuid.UUID) (*backend.StartAttemptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := f.attempt
	return &res, nil
}

func (f *fakeClient) SaveProgress(ctx context.Context, p backend.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	f.lastProgress = p
	return nil
}

func (f *fakeClient) Submit(ctx context.Context, s backend.Submission) error {
	f.mu.Lock()
	f.submitCalls++
	f.lastSubmission = s
	err := f.submitErr
	block := f.submitBlock
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeClient) Heartbeat(ctx context.Context, hb backend.HeartbeatStatus) (*backend.HeartbeatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heartbeatErr != nil {
		return nil, f.heartbeatErr
	}
	res := f.heartbeatRes
	return &res, nil
}

func (f *fakeClient) JoinSession(ctx context.Context, assignmentID uuid.UUID) (*backend.JoinResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &backend.JoinResult{ParticipantID: uuid.New(), RoomStatus: f.roomStatus}, nil
}

func (f *fakeClient) SetReady(ctx context.Context, participantID uuid.UUID) error {
	return nil
}

func (f *fakeClient) Disconnect(ctx context.Context, participantID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeClient) GetMessages(ctx context.Context, participantID uuid.UUID) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Message, len(f.messages))
	copy(out, f.messages)
	return out, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, participantID uuid.UUID, body string, clientRef uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentBodies = append(f.sentBodies, body)
	return nil
}

func (f *fakeClient) MarkMessagesRead(ctx context.Context, participantID uuid.UUID, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls = append(f.readCalls, ids)
	return nil
}

var _ backend.Client = (*fakeClient)(nil)

func (f *fakeClient) setHeartbeat(res backend.HeartbeatResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeatRes = res
	f.heartbeatErr = err
}

func (f *fakeClient) counts() (submits, saves, disconnects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls, f.saveCalls, f.disconnects
}

// testSession builds a 2-section session: section 1 has 2 single-choice
// questions, section 2 has 3.
func testSession() *model.Session {
	questions := make([]model.Question, 5)
	for i := range questions {
		questions[i] = model.Question{
			ID:     uuid.New(),
			Prompt: "q",
			Type:   model.QuestionTypeSingleChoice,
			Options: []model.Option{
				{ID: uuid.New(), Text: "a"},
				{ID: uuid.New(), Text: "b"},
			},
		}
	}
	return &model.Session{
		ID:              uuid.New(),
		Title:           "test",
		DurationMinutes: 60,
		Questions:       questions,
		Sections: []model.Section{
			{Name: "one", DurationMinutes: 10, Position: 1,
				QuestionIDs: []uuid.UUID{questions[0].ID, questions[1].ID}},
			{Name: "two", DurationMinutes: 20, Position: 2,
				QuestionIDs: []uuid.UUID{questions[2].ID, questions[3].ID, questions[4].ID}},
		},
		AccessMode: model.AccessModeOpen,
	}
}

// fastOpts keeps every loop far below test timeouts.
func fastOpts() Options {
	return Options{
		TickInterval:              5 * time.Millisecond,
		AutosaveInterval:          20 * time.Millisecond,
		HeartbeatInterval:         10 * time.Millisecond,
		ActivationPollInterval:    10 * time.Millisecond,
		MessagePollOpen:           10 * time.Millisecond,
		MessagePollClosed:         20 * time.Millisecond,
		MessageMatchWindow:        15 * time.Second,
		HeartbeatFailureThreshold: 3,
		CallTimeout:               time.Second,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
