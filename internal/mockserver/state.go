package mockserver

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/prova-engine/internal/model"
)

// Store state-machine errors, mapped to API error codes by the handlers.
var (
	errNotFound       = errors.New("not found")
	errSubmitted      = errors.New("attempt already submitted")
	errRoomInactive   = errors.New("room not active")
	errParticipantOut = errors.New("participant not in room")
)

// attempt is one in-progress or submitted exam attempt.
type attempt struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Answers        []model.Answer
	ElapsedSeconds int
	SectionIndex   *int
	Submitted      bool
	TotalTime      int
	StartedAt      time.Time
}

// participant is one device's membership in a virtual room.
type participant struct {
	model.Participant
	AssignmentID  uuid.UUID
	QuestionIndex int
	AnsweredCount int
	Connected     bool
	LastSeen      time.Time
	Messages      []model.Message
}

// room is one proctored waiting room keyed by assignment id.
type room struct {
	AssignmentID uuid.UUID
	SessionID    uuid.UUID
	Status       model.RoomStatus
	StartedAt    *time.Time
	Participants map[uuid.UUID]*participant
}

// Store keeps all practice-server state in memory. It is the fixture-backed
// stand-in for the real platform's persistence, scoped to one student device
// the way the engine's integration tests need it.
type Store struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]*model.Session
	attempts     map[uuid.UUID]*attempt
	bySession    map[uuid.UUID]uuid.UUID // session id -> attempt id
	rooms        map[uuid.UUID]*room     // keyed by assignment id
	participants map[uuid.UUID]*participant
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions:     make(map[uuid.UUID]*model.Session),
		attempts:     make(map[uuid.UUID]*attempt),
		bySession:    make(map[uuid.UUID]uuid.UUID),
		rooms:        make(map[uuid.UUID]*room),
		participants: make(map[uuid.UUID]*participant),
	}
}

// AddSession seeds a session fixture.
func (s *Store) AddSession(session *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

// AddRoom seeds an inactive virtual room for a proctored session.
func (s *Store) AddRoom(assignmentID, sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[assignmentID] = &room{
		AssignmentID: assignmentID,
		SessionID:    sessionID,
		Status:       model.RoomStatusInactive,
		Participants: make(map[uuid.UUID]*participant),
	}
}

// Session returns a seeded session.
func (s *Store) Session(id uuid.UUID) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, errNotFound
	}
	return session, nil
}

// SessionStatus reports the room status of a proctored session.
func (s *Store) SessionStatus(sessionID uuid.UUID) (model.RoomStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.SessionID == sessionID {
			return r.Status, nil
		}
	}
	return "", errNotFound
}

// StartAttempt begins or resumes the attempt for a session. A prior attempt
// with saved progress resumes when the session allows it; a submitted
// attempt cannot restart.
func (s *Store) StartAttempt(sessionID uuid.UUID) (*attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, errNotFound
	}
	if aid, ok := s.bySession[sessionID]; ok {
		a := s.attempts[aid]
		if a.Submitted {
			return nil, false, errSubmitted
		}
		if session.Resumable && a.Answers != nil {
			return a, true, nil
		}
		return a, false, nil
	}
	a := &attempt{
		ID:        uuid.New(),
		SessionID: sessionID,
		StartedAt: time.Now(),
	}
	s.attempts[a.ID] = a
	s.bySession[sessionID] = a.ID
	return a, false, nil
}

// SaveProgress overwrites the attempt's saved snapshot. Idempotent:
// re-sending the same snapshot changes nothing observable.
func (s *Store) SaveProgress(attemptID uuid.UUID, answers []model.Answer, elapsed int, sectionIndex *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return errNotFound
	}
	if a.Submitted {
		// Late autosave after submission is acknowledged but discarded so it
		// can never resurrect a completed attempt.
		return nil
	}
	a.Answers = answers
	a.ElapsedSeconds = elapsed
	a.SectionIndex = sectionIndex
	return nil
}

// Submit finalizes the attempt. A second call fails.
func (s *Store) Submit(attemptID uuid.UUID, answers []model.Answer, totalTime int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return errNotFound
	}
	if a.Submitted {
		return errSubmitted
	}
	a.Submitted = true
	a.Answers = answers
	a.TotalTime = totalTime
	return nil
}

// Attempt returns a copy of the attempt record, for test assertions.
func (s *Store) Attempt(attemptID uuid.UUID) (attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return attempt{}, false
	}
	return *a, true
}

// AttemptForSession returns the attempt id created for a session.
func (s *Store) AttemptForSession(sessionID uuid.UUID) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySession[sessionID]
	return id, ok
}

// Join admits the device into an activated room.
func (s *Store) Join(assignmentID uuid.UUID) (*participant, model.RoomStatus, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[assignmentID]
	if !ok {
		return nil, "", nil, errNotFound
	}
	if r.Status == model.RoomStatusInactive || r.Status == model.RoomStatusEnded {
		return nil, "", nil, errRoomInactive
	}
	p := &participant{
		Participant: model.Participant{
			ID:          uuid.New(),
			ConnectedAt: time.Now(),
		},
		AssignmentID: assignmentID,
		Connected:    true,
		LastSeen:     time.Now(),
	}
	r.Participants[p.ID] = p
	s.participants[p.ID] = p
	return p, r.Status, r.StartedAt, nil
}

// SetReady flips the participant's readiness.
func (s *Store) SetReady(participantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return errParticipantOut
	}
	p.Ready = true
	return nil
}

// Disconnect records a voluntary departure.
func (s *Store) Disconnect(participantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return errParticipantOut
	}
	p.Connected = false
	return nil
}

// heartbeatView is everything one heartbeat response needs.
type heartbeatView struct {
	Kicked       bool
	KickedReason string
	Status       model.RoomStatus
	StartedAt    *time.Time
	Ready        bool
	Connected    int
	Total        int
	UnreadIDs    []uuid.UUID
}

// Heartbeat updates presence and assembles the response view.
func (s *Store) Heartbeat(participantID uuid.UUID, questionIndex, answeredCount int) (*heartbeatView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return nil, errParticipantOut
	}
	r := s.rooms[p.AssignmentID]
	if r == nil {
		return nil, errNotFound
	}
	p.LastSeen = time.Now()
	p.QuestionIndex = questionIndex
	p.AnsweredCount = answeredCount

	view := &heartbeatView{
		Kicked:       p.Kicked,
		KickedReason: p.KickedReason,
		Status:       r.Status,
		StartedAt:    r.StartedAt,
		Ready:        p.Ready,
		Total:        len(r.Participants),
	}
	for _, other := range r.Participants {
		if other.Connected {
			view.Connected++
		}
	}
	for i := range p.Messages {
		if !p.Messages[i].Read && p.Messages[i].Role == model.MessageRoleProctor {
			view.UnreadIDs = append(view.UnreadIDs, p.Messages[i].ID)
		}
	}
	return view, nil
}

// Messages returns the participant's full message log.
func (s *Store) Messages(participantID uuid.UUID) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return nil, errParticipantOut
	}
	out := make([]model.Message, len(p.Messages))
	copy(out, p.Messages)
	return out, nil
}

// AppendMessage appends to the participant's log, echoing the client
// correlation id for student messages.
func (s *Store) AppendMessage(participantID uuid.UUID, role model.MessageRole, body string, clientRef uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return errParticipantOut
	}
	p.Messages = append(p.Messages, model.Message{
		ID:        uuid.New(),
		Role:      role,
		Body:      body,
		CreatedAt: time.Now(),
		ClientRef: clientRef,
	})
	return nil
}

// MarkRead marks the given message ids read. Unknown ids are ignored, so the
// operation is idempotent.
func (s *Store) MarkRead(participantID uuid.UUID, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return errParticipantOut
	}
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range p.Messages {
		if want[p.Messages[i].ID] {
			p.Messages[i].Read = true
		}
	}
	return nil
}

// ─── Proctor controls ───────────────────────────────────────────────────────

// ActivateRoom opens the waiting room.
func (s *Store) ActivateRoom(assignmentID uuid.UUID) error {
	return s.setRoomStatus(assignmentID, model.RoomStatusWaiting, false)
}

// StartRoom starts the exam for every participant; the server-issued start
// timestamp is set here and echoed by subsequent heartbeats.
func (s *Store) StartRoom(assignmentID uuid.UUID) error {
	return s.setRoomStatus(assignmentID, model.RoomStatusStarted, true)
}

// EndRoom ends the session for every participant.
func (s *Store) EndRoom(assignmentID uuid.UUID) error {
	return s.setRoomStatus(assignmentID, model.RoomStatusEnded, false)
}

func (s *Store) setRoomStatus(assignmentID uuid.UUID, status model.RoomStatus, stampStart bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[assignmentID]
	if !ok {
		return errNotFound
	}
	r.Status = status
	if stampStart && r.StartedAt == nil {
		now := time.Now()
		r.StartedAt = &now
	}
	return nil
}

// Kick removes a participant with a reason; the next heartbeat reports it.
func (s *Store) Kick(participantID uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return errParticipantOut
	}
	p.Kicked = true
	p.KickedReason = reason
	return nil
}

// RoomParticipants lists the membership of a room for the proctor surface.
func (s *Store) RoomParticipants(assignmentID uuid.UUID) ([]model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[assignmentID]
	if !ok {
		return nil, errNotFound
	}
	out := make([]model.Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, p.Participant)
	}
	return out, nil
}
