// Package exam implements the client-side exam-session engine: answer
// capture, countdown timers, section progression, autosave/resume, virtual
// room synchronization and the lifecycle state machine that ties them
// together. The engine never computes a score; it collects and transmits
// answer state to the backend collaborator.
package exam

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/prova-engine/internal/backend"
	"github.com/stemsi/prova-engine/internal/model"
)

// State enumerates the controller's lifecycle. Expiry is not a state of its
// own: it is InProgress plus a pending forced submission.
type State string

const (
	StateNotStarted  State = "NOT_STARTED"
	StateWaitingRoom State = "WAITING_ROOM"
	StateStarting    State = "STARTING"
	StateInProgress  State = "IN_PROGRESS"
	StateSubmitting  State = "SUBMITTING"
	StateCompleted   State = "COMPLETED"
	StateFailed      State = "FAILED"
)

// Controller owns the attempt lifecycle and wires the engine's components
// together. It is the single mutable owner: the autosave loop and the
// submission path read answer state through it but never mutate it, and all
// periodic loops stop when the controller is closed.
type Controller struct {
	mu     sync.Mutex
	opts   Options
	client backend.Client
	log    zerolog.Logger
	events chan Event

	session   *model.Session
	attemptID uuid.UUID
	answers   *AnswerStore
	nav       *Navigator
	global    *Countdown
	section   *Countdown
	room      *RoomSync

	state          State
	current        int
	savedElapsed   int
	started        bool
	submitted      bool
	submitInFlight bool

	runCtx context.Context
	cancel context.CancelFunc
}

// NewController creates an idle controller for one attempt.
func NewController(client backend.Client, log zerolog.Logger, opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		opts:   opts,
		client: client,
		log:    log.With().Str("component", "session_controller").Logger(),
		events: make(chan Event, opts.EventBuffer),
		state:  StateNotStarted,
	}
}

// Events returns the engine's event channel. Events are dropped, not queued,
// if the consumer falls more than the buffer behind.
func (c *Controller) Events() <-chan Event {
	return c.events
}

func (c *Controller) publish(e Event) {
	select {
	case c.events <- e:
	default:
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.publish(Event{Type: EventStateChanged, State: s})
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the loaded session metadata; nil before Start.
func (c *Controller) Session() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Answers exposes the store for reads (current answer, flags, counts).
func (c *Controller) Answers() *AnswerStore {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answers
}

// Navigator exposes section addressing for the question surface.
func (c *Controller) Navigator() *Navigator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nav
}

// Room returns the virtual-room synchronizer; nil for unproctored attempts.
func (c *Controller) Room() *RoomSync {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Start fetches session metadata, initializes or resumes the components and
// enters the question flow. For proctored sessions it parks in WaitingRoom
// until the room synchronizer hands off the server-issued start timestamp;
// the client never self-declares start time. A metadata or attempt-start
// failure is fatal to this attempt and reported once, with no automatic
// retry.
func (c *Controller) Start(ctx context.Context, sessionID uuid.UUID, assignmentID *uuid.UUID) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.runCtx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()
	c.setState(StateStarting)

	session, err := c.fetchSession(ctx, sessionID)
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("fetch session: %w", err)
	}

	attempt, err := c.startAttempt(ctx, sessionID, assignmentID)
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("start attempt: %w", err)
	}

	c.mu.Lock()
	c.session = session
	c.attemptID = attempt.AttemptID
	c.answers = NewAnswerStore(session.Questions)
	c.nav = NewNavigator(session)
	c.global = NewCountdown(c.onGlobalExpiry)
	if session.Sectioned() {
		c.section = NewCountdown(c.onSectionExpiry)
	}

	// Hydration completes here, before any user-driven mutation can be
	// accepted: mutators are gated on InProgress, which is only entered
	// below (or on room handoff).
	if attempt.Resumed {
		c.answers.Hydrate(attempt.SavedAnswers)
		c.savedElapsed = attempt.SavedElapsedSeconds
		if attempt.SavedSectionIndex != nil {
			c.nav.Restore(*attempt.SavedSectionIndex)
		}
	}
	if first, ok := c.nav.GlobalIndex(c.nav.Active(), 0); ok {
		c.current = first
	}
	proctored := session.AccessMode == model.AccessModeProctored
	c.mu.Unlock()

	c.log.Info().
		Str("session_id", sessionID.String()).
		Str("attempt_id", attempt.AttemptID.String()).
		Bool("resumed", attempt.Resumed).
		Bool("proctored", proctored).
		Msg("attempt started")

	if proctored {
		if assignmentID == nil {
			c.setState(StateFailed)
			return fmt.Errorf("proctored session %s requires an assignment id", sessionID)
		}
		c.setState(StateWaitingRoom)
		room := newRoomSync(c.opts, c.client, c.log, sessionID, *assignmentID,
			c.roomProgress, c.beginExam, c.onRoomTerminated, c.publish)
		c.mu.Lock()
		c.room = room
		runCtx := c.runCtx
		c.mu.Unlock()
		go room.Run(runCtx)
		return nil
	}

	c.beginExam(time.Now())
	return nil
}

func (c *Controller) fetchSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()
	return c.client.GetSession(callCtx, sessionID)
}

func (c *Controller) startAttempt(ctx context.Context, sessionID uuid.UUID, assignmentID *uuid.UUID) (*backend.StartAttemptResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()
	return c.client.StartAttempt(callCtx, sessionID, assignmentID)
}

// beginExam arms the timers and periodic loops and enters InProgress.
// startedAt is authoritative: for proctored sessions it comes from the
// server, otherwise it is the local clock.
func (c *Controller) beginExam(startedAt time.Time) {
	c.mu.Lock()
	if c.state == StateInProgress || c.state == StateCompleted || c.state == StateSubmitting {
		c.mu.Unlock()
		return
	}

	lag := int(time.Since(startedAt).Seconds())
	if lag < 0 {
		lag = 0
	}
	if c.session.Timed() {
		remaining := c.session.DurationMinutes*60 - c.savedElapsed - lag
		if remaining <= 0 {
			// The budget is already gone; the first tick forces submission.
			remaining = 1
		}
		c.global.Start(remaining)
	} else {
		c.global.Start(0)
	}
	c.global.SetElapsed(c.savedElapsed + lag)

	if c.section != nil {
		if sec, ok := c.nav.Section(c.nav.Active()); ok {
			c.section.Start(sec.DurationMinutes * 60)
		}
	}

	runCtx := c.runCtx
	c.mu.Unlock()

	go NewScheduler(c.opts.TickInterval, c.onTick).Run(runCtx)
	go newAutosaver(c.opts, c.client, c.log).run(runCtx, c)

	c.setState(StateInProgress)
}

// onTick is the single shared tick: both countdowns advance together so they
// cannot drift, and the active question accrues one second of time spent.
func (c *Controller) onTick() {
	c.mu.Lock()
	global, section := c.global, c.section
	inProgress := c.state == StateInProgress
	var qid uuid.UUID
	if inProgress && c.current >= 0 && c.current < len(c.session.Questions) {
		qid = c.session.Questions[c.current].ID
	}
	answers := c.answers
	c.mu.Unlock()

	if inProgress && qid != uuid.Nil {
		answers.AccumulateTime(qid, 1)
	}
	if section != nil {
		section.Tick()
	}
	global.Tick()
}

// onGlobalExpiry forces full submission without confirmation.
func (c *Controller) onGlobalExpiry() {
	c.log.Info().Msg("global timer expired, forcing submission")
	c.mu.Lock()
	ctx := c.runCtx
	c.mu.Unlock()
	if err := c.submit(ctx); err != nil && err != ErrSubmitted {
		c.log.Error().Err(err).Msg("forced submission failed")
	}
}

// onRoomTerminated handles an authoritative Kicked/Ended signal from the
// room synchronizer. It wins over any local state: the store freezes, both
// countdowns stop and every periodic loop is cancelled, no matter how far
// the attempt has progressed. A submitted attempt keeps its Completed state.
func (c *Controller) onRoomTerminated(s RoomState, reason string) {
	c.mu.Lock()
	if c.state == StateCompleted || c.state == StateFailed {
		c.mu.Unlock()
		return
	}
	if c.answers != nil {
		c.answers.Freeze()
	}
	if c.global != nil {
		c.global.Stop()
	}
	if c.section != nil {
		c.section.Stop()
	}
	cancel := c.cancel
	c.mu.Unlock()

	c.setState(StateFailed)
	if cancel != nil {
		cancel()
	}
	c.log.Info().
		Str("room_state", string(s)).
		Str("reason", reason).
		Msg("attempt terminated by server")
}

// onSectionExpiry concludes the active section, equivalent to the student
// doing it manually.
func (c *Controller) onSectionExpiry() {
	c.log.Info().Msg("section timer expired, advancing")
	if err := c.AdvanceSection(); err != nil && err != ErrSubmitted {
		c.log.Error().Err(err).Msg("forced section advance failed")
	}
}

// CurrentQuestion returns the global index of the active question.
func (c *Controller) CurrentQuestion() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// GoToQuestion repositions on a question of the active section. Navigation
// to a question of a completed (or future) section is rejected.
func (c *Controller) GoToQuestion(global int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return ErrNotInProgress
	}
	if !c.nav.CanNavigate(global) {
		return ErrSectionLocked
	}
	c.current = global
	return nil
}

// Select, SetText, ToggleFlag delegate to the answer store while the attempt
// is in progress; outside it they are no-ops, matching the store's own
// contract for stale callbacks.

func (c *Controller) Select(questionID, optionID uuid.UUID) {
	if store, ok := c.mutableStore(); ok {
		store.Select(questionID, optionID)
	}
}

func (c *Controller) Unselect(questionID uuid.UUID) {
	if store, ok := c.mutableStore(); ok {
		store.Unselect(questionID)
	}
}

func (c *Controller) SetText(questionID uuid.UUID, value string) {
	if store, ok := c.mutableStore(); ok {
		store.SetText(questionID, value)
	}
}

func (c *Controller) ToggleFlag(questionID uuid.UUID) {
	if store, ok := c.mutableStore(); ok {
		store.ToggleFlag(questionID)
	}
}

func (c *Controller) mutableStore() (*AnswerStore, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return nil, false
	}
	return c.answers, true
}

// AdvanceSection concludes the active section irreversibly. The section
// timer reset and question repositioning complete before the method returns,
// so no mutation for the new section can observe a half-advanced state. When
// the last section concludes, submission is initiated instead.
func (c *Controller) AdvanceSection() error {
	c.mu.Lock()
	if c.state != StateInProgress {
		c.mu.Unlock()
		return ErrNotInProgress
	}
	next, done := c.nav.Advance()
	if done {
		ctx := c.runCtx
		c.mu.Unlock()
		return c.submit(ctx)
	}
	if sec, ok := c.nav.Section(next); ok && c.section != nil {
		c.section.Reset(sec.DurationMinutes * 60)
	}
	if first, ok := c.nav.GlobalIndex(next, 0); ok {
		c.current = first
	}
	c.mu.Unlock()

	c.publish(Event{Type: EventSectionAdvanced, Section: next})
	return nil
}

// RequestSubmit finalizes the attempt on explicit user confirmation. The
// manual trigger and timer expiry collapse to a single backend call: a
// second trigger while one is in flight, or after completion, is ignored.
func (c *Controller) RequestSubmit(ctx context.Context) error {
	return c.submit(ctx)
}

func (c *Controller) submit(ctx context.Context) error {
	c.mu.Lock()
	if c.submitted || c.submitInFlight {
		c.mu.Unlock()
		return ErrSubmitted
	}
	if c.state != StateInProgress {
		c.mu.Unlock()
		return ErrNotInProgress
	}
	c.submitInFlight = true
	c.answers.Freeze()
	c.global.Stop()
	if c.section != nil {
		c.section.Stop()
	}
	sub := backend.Submission{
		AttemptID:        c.attemptID,
		Answers:          c.answers.Snapshot(),
		TotalTimeSeconds: c.global.Elapsed(),
	}
	c.mu.Unlock()
	c.setState(StateSubmitting)

	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	err := c.client.Submit(callCtx, sub)
	cancel()

	if err != nil {
		// Recoverable: unfreeze and return to an editable state so the
		// student can retry. The in-memory answers are never discarded.
		c.mu.Lock()
		c.submitInFlight = false
		if c.state == StateFailed {
			// The server terminated the attempt while the call was in
			// flight; that verdict stands.
			c.mu.Unlock()
			return fmt.Errorf("submit attempt: %w", err)
		}
		c.answers.Unfreeze()
		c.global.Resume()
		if c.section != nil {
			c.section.Resume()
		}
		c.mu.Unlock()
		c.setState(StateInProgress)
		c.publish(Event{Type: EventSubmitFailed, Err: err})
		c.log.Error().Err(err).Msg("submission failed, attempt stays editable")
		return fmt.Errorf("submit attempt: %w", err)
	}

	c.mu.Lock()
	c.submitted = true
	c.submitInFlight = false
	cancelLoops := c.cancel
	c.mu.Unlock()
	c.setState(StateCompleted)
	if cancelLoops != nil {
		cancelLoops()
	}
	c.log.Info().Int("total_time_seconds", sub.TotalTimeSeconds).Msg("attempt submitted")
	return nil
}

// Remaining returns the global and section seconds left. Section is zero for
// non-sectioned sessions.
func (c *Controller) Remaining() (global, section int) {
	c.mu.Lock()
	g, s := c.global, c.section
	c.mu.Unlock()
	if g != nil {
		global = g.Remaining()
	}
	if s != nil {
		section = s.Remaining()
	}
	return global, section
}

// progressSnapshot assembles one autosave payload. ok is false outside
// InProgress so a late tick can never save against a finished attempt.
func (c *Controller) progressSnapshot() (backend.Progress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return backend.Progress{}, false
	}
	p := backend.Progress{
		AttemptID:      c.attemptID,
		Answers:        c.answers.Snapshot(),
		ElapsedSeconds: c.global.Elapsed(),
	}
	if c.session.Sectioned() {
		idx := c.nav.Active()
		p.SectionIndex = &idx
	}
	return p, true
}

// roomProgress supplies the heartbeat payload fields.
func (c *Controller) roomProgress() (questionIndex, answeredCount int) {
	c.mu.Lock()
	idx := c.current
	store := c.answers
	c.mu.Unlock()
	if store != nil {
		answeredCount = store.AnsweredCount()
	}
	return idx, answeredCount
}

// Close tears the engine down: every periodic loop stops and, for proctored
// attempts, the backend is notified of the voluntary disconnect. Asking the
// student to confirm before discarding state is the caller's concern.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	cancel := c.cancel
	room := c.room
	c.mu.Unlock()

	if room != nil {
		room.Shutdown(ctx)
	}
	if cancel != nil {
		cancel()
	}
}
