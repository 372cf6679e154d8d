package exam

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/prova-engine/internal/backend"
	"github.com/stemsi/prova-engine/internal/model"
)

// RoomState enumerates the virtual-room synchronizer's state machine. Ended
// and Kicked are absorbing: they stop every room activity and are reachable
// from any non-terminal state, only ever on an explicit server signal.
type RoomState string

const (
	RoomCheckingSession RoomState = "CHECKING_SESSION"
	RoomWaitingInactive RoomState = "WAITING_ROOM_INACTIVE"
	RoomJoining         RoomState = "JOINING"
	RoomWaitingForReady RoomState = "WAITING_FOR_READY"
	RoomWaitingForStart RoomState = "WAITING_FOR_START"
	RoomInProgress      RoomState = "IN_PROGRESS"
	RoomEnded           RoomState = "ENDED"
	RoomKicked          RoomState = "KICKED"
)

// Terminal reports whether the state absorbs all further transitions.
func (s RoomState) Terminal() bool {
	return s == RoomEnded || s == RoomKicked
}

// outboxEntry is an optimistically inserted outgoing message awaiting
// reconciliation against a poll result.
type outboxEntry struct {
	msg  model.Message
	sent bool
}

// RoomSync manages waiting-room membership, readiness, heartbeat-driven
// presence and the polling message channel for a proctored attempt. It is
// owned by the Controller and publishes through the controller's event
// channel; the handoff callback delivers the server-issued start timestamp.
type RoomSync struct {
	mu      sync.Mutex
	opts    Options
	client  backend.Client
	log     zerolog.Logger
	session uuid.UUID
	assign  uuid.UUID

	state       model.RoomStatus // last server-reported room status
	local       RoomState
	participant model.Participant
	joined      bool
	handedOff   bool

	hbFails      int
	reconnecting bool
	chatOpen     bool
	messages     []model.Message
	outbox       []outboxEntry
	unread       int

	// progress supplies the current question index and answered count for
	// the heartbeat payload.
	progress func() (questionIndex, answeredCount int)
	handoff  func(startedAt time.Time)
	// terminated fires once on an authoritative Kicked/Ended signal so the
	// owner can stop the attempt no matter how far it has progressed.
	terminated func(state RoomState, reason string)
	publish    func(Event)
	cancel     context.CancelFunc
}

func newRoomSync(
	opts Options,
	client backend.Client,
	log zerolog.Logger,
	sessionID, assignmentID uuid.UUID,
	progress func() (int, int),
	handoff func(time.Time),
	terminated func(RoomState, string),
	publish func(Event),
) *RoomSync {
	return &RoomSync{
		opts:       opts,
		client:     client,
		log:        log.With().Str("component", "room_sync").Logger(),
		session:    sessionID,
		assign:     assignmentID,
		local:      RoomCheckingSession,
		progress:   progress,
		handoff:    handoff,
		terminated: terminated,
		publish:    publish,
	}
}

// State returns the synchronizer's current local state.
func (r *RoomSync) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local
}

// Participant returns a copy of the current membership record.
func (r *RoomSync) Participant() model.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participant
}

// Reconnecting reports whether connectivity has degraded past the threshold.
func (r *RoomSync) Reconnecting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconnecting
}

// UnreadCount returns the current unread badge count.
func (r *RoomSync) UnreadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread
}

// Messages returns a copy of the reconciled message view: the server log
// plus any not-yet-acknowledged optimistic inserts.
func (r *RoomSync) Messages() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Message, len(r.messages))
	copy(out, r.messages)
	for i := range r.outbox {
		out = append(out, r.outbox[i].msg)
	}
	return out
}

func (r *RoomSync) setState(s RoomState) {
	r.mu.Lock()
	if r.local.Terminal() || r.local == s {
		r.mu.Unlock()
		return
	}
	r.local = s
	r.mu.Unlock()
	r.publish(Event{Type: EventRoomStateChanged, RoomState: s})
}

// terminate moves to an absorbing state and stops every room loop.
func (r *RoomSync) terminate(s RoomState, reason string) {
	r.mu.Lock()
	if r.local.Terminal() {
		r.mu.Unlock()
		return
	}
	r.local = s
	if s == RoomKicked {
		r.participant.Kicked = true
		r.participant.KickedReason = reason
	}
	cancel := r.cancel
	r.mu.Unlock()

	r.publish(Event{Type: EventRoomStateChanged, RoomState: s, Reason: reason})
	if s == RoomKicked {
		r.publish(Event{Type: EventKicked, Reason: reason})
	}
	if cancel != nil {
		cancel()
	}
	if r.terminated != nil {
		r.terminated(s, reason)
	}
}

// Run drives the synchronizer until handoff plus session end, or until ctx is
// cancelled. Call in a goroutine.
func (r *RoomSync) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	if !r.waitForActivation(ctx) {
		return
	}
	if !r.join(ctx) {
		return
	}

	go r.messageLoop(ctx)
	r.heartbeatLoop(ctx)
}

// waitForActivation polls session status until the proctor activates the
// room. Only runs while not yet joined.
func (r *RoomSync) waitForActivation(ctx context.Context) bool {
	ticker := time.NewTicker(r.opts.ActivationPollInterval)
	defer ticker.Stop()

	for {
		status, err := r.fetchStatus(ctx)
		if err == nil {
			switch status {
			case model.RoomStatusInactive:
				r.setState(RoomWaitingInactive)
			case model.RoomStatusEnded:
				r.terminate(RoomEnded, "")
				return false
			default:
				return true
			}
		} else if ctx.Err() == nil {
			r.log.Debug().Err(err).Msg("activation poll failed, retrying")
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (r *RoomSync) fetchStatus(ctx context.Context) (model.RoomStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	return r.client.GetSessionStatus(callCtx, r.session)
}

func (r *RoomSync) join(ctx context.Context) bool {
	r.setState(RoomJoining)

	var res *backend.JoinResult
	for {
		callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		out, err := r.client.JoinSession(callCtx, r.assign)
		cancel()
		if err == nil {
			res = out
			break
		}
		if ctx.Err() != nil {
			return false
		}
		r.log.Error().Err(err).Msg("join failed, retrying")
		select {
		case <-ctx.Done():
			return false
		case <-time.After(r.opts.ActivationPollInterval):
		}
	}

	r.mu.Lock()
	r.joined = true
	r.participant = model.Participant{ID: res.ParticipantID, ConnectedAt: time.Now()}
	r.mu.Unlock()

	// Rejoin after a crash can land in an already-started room.
	if res.RoomStatus == model.RoomStatusStarted && res.StartedAt != nil {
		r.handOff(*res.StartedAt)
	} else {
		r.setState(RoomWaitingForReady)
	}
	return true
}

// SetReady performs the readiness handshake.
func (r *RoomSync) SetReady(ctx context.Context) error {
	r.mu.Lock()
	pid := r.participant.ID
	terminal := r.local.Terminal()
	r.mu.Unlock()
	if terminal {
		return ErrNotInProgress
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	if err := r.client.SetReady(callCtx, pid); err != nil {
		return err
	}
	r.mu.Lock()
	r.participant.Ready = true
	r.mu.Unlock()
	r.setState(RoomWaitingForStart)
	return nil
}

func (r *RoomSync) handOff(startedAt time.Time) {
	r.mu.Lock()
	if r.handedOff || r.local.Terminal() {
		r.mu.Unlock()
		return
	}
	r.handedOff = true
	r.mu.Unlock()
	r.setState(RoomInProgress)
	r.handoff(startedAt)
}

// heartbeatLoop sends presence on a fixed short interval and interprets the
// response. A single failure is transient; the reconnecting indication flips
// only after HeartbeatFailureThreshold consecutive failures and never
// terminates the session locally.
func (r *RoomSync) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		qi, ac := r.progress()
		r.mu.Lock()
		pid := r.participant.ID
		r.mu.Unlock()

		callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		res, err := r.client.Heartbeat(callCtx, backend.HeartbeatStatus{
			ParticipantID: pid,
			QuestionIndex: qi,
			AnsweredCount: ac,
		})
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.noteFailure()
			continue
		}
		r.noteSuccess()
		r.applyHeartbeat(res)
		if r.State().Terminal() {
			return
		}
	}
}

func (r *RoomSync) noteFailure() {
	r.mu.Lock()
	r.hbFails++
	flip := r.hbFails >= r.opts.HeartbeatFailureThreshold && !r.reconnecting
	if flip {
		r.reconnecting = true
	}
	fails := r.hbFails
	r.mu.Unlock()
	r.log.Debug().Int("consecutive_failures", fails).Msg("heartbeat failed")
	if flip {
		r.publish(Event{Type: EventReconnecting, Reconnecting: true})
	}
}

func (r *RoomSync) noteSuccess() {
	r.mu.Lock()
	r.hbFails = 0
	flip := r.reconnecting
	r.reconnecting = false
	r.mu.Unlock()
	if flip {
		r.publish(Event{Type: EventReconnecting, Reconnecting: false})
	}
}

// applyHeartbeat interprets a heartbeat response. Kicked wins over anything
// else, including a room that still reports itself active.
func (r *RoomSync) applyHeartbeat(res *backend.HeartbeatResult) {
	if res.Kicked {
		r.terminate(RoomKicked, res.KickedReason)
		return
	}
	if res.RoomStatus == model.RoomStatusEnded {
		r.terminate(RoomEnded, "")
		return
	}
	if res.RoomStatus == model.RoomStatusStarted && res.StartedAt != nil {
		r.handOff(*res.StartedAt)
	}

	r.mu.Lock()
	// Readiness echo keeps local state honest across reconnects.
	r.participant.Ready = res.Ready
	r.state = res.RoomStatus
	unread := len(res.UnreadMessageIDs)
	changed := unread != r.unread
	r.unread = unread
	r.mu.Unlock()

	if changed {
		r.publish(Event{Type: EventUnreadMessages, Unread: unread})
	}
}

// OpenChat marks the chat surface open: polling speeds up and every unread
// message is marked read. Safe to call repeatedly.
func (r *RoomSync) OpenChat(ctx context.Context) {
	r.mu.Lock()
	r.chatOpen = true
	r.mu.Unlock()
	r.markAllRead(ctx)
}

// CloseChat slows message polling back down to badge-update cadence.
func (r *RoomSync) CloseChat() {
	r.mu.Lock()
	r.chatOpen = false
	r.mu.Unlock()
}

func (r *RoomSync) markAllRead(ctx context.Context) {
	r.mu.Lock()
	pid := r.participant.ID
	var ids []uuid.UUID
	for i := range r.messages {
		if !r.messages[i].Read {
			ids = append(ids, r.messages[i].ID)
		}
	}
	r.mu.Unlock()
	if len(ids) == 0 {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	if err := r.client.MarkMessagesRead(callCtx, pid, ids); err != nil {
		r.log.Debug().Err(err).Msg("mark read failed, retrying on next open")
		return
	}

	r.mu.Lock()
	for i := range r.messages {
		r.messages[i].Read = true
	}
	unreadChanged := r.unread != 0
	r.unread = 0
	r.mu.Unlock()
	if unreadChanged {
		r.publish(Event{Type: EventUnreadMessages, Unread: 0})
	}
}

// Send inserts the outgoing message locally right away and pushes it to the
// backend. A failed push stays in the outbox and is retried by the message
// loop; the optimistic copy is reconciled against the next poll result.
func (r *RoomSync) Send(ctx context.Context, body string) {
	if body == "" {
		return
	}
	entry := outboxEntry{msg: model.Message{
		ID:        uuid.New(),
		Role:      model.MessageRoleStudent,
		Body:      body,
		CreatedAt: time.Now(),
		Read:      true,
		ClientRef: uuid.New(),
	}}

	r.mu.Lock()
	if r.local.Terminal() {
		r.mu.Unlock()
		return
	}
	pid := r.participant.ID
	r.outbox = append(r.outbox, entry)
	idx := len(r.outbox) - 1
	r.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	if err := r.client.SendMessage(callCtx, pid, body, entry.msg.ClientRef); err != nil {
		r.log.Debug().Err(err).Msg("send failed, message loop will retry")
		return
	}
	r.mu.Lock()
	if idx < len(r.outbox) && r.outbox[idx].msg.ClientRef == entry.msg.ClientRef {
		r.outbox[idx].sent = true
	}
	r.mu.Unlock()
}

// messageLoop polls the message channel: fast while the chat surface is open,
// slow while it is closed. Each cycle first retries unsent outbox entries.
func (r *RoomSync) messageLoop(ctx context.Context) {
	for {
		r.mu.Lock()
		interval := r.opts.MessagePollClosed
		if r.chatOpen {
			interval = r.opts.MessagePollOpen
		}
		terminal := r.local.Terminal()
		r.mu.Unlock()
		if terminal {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		r.flushOutbox(ctx)
		r.poll(ctx)
	}
}

func (r *RoomSync) flushOutbox(ctx context.Context) {
	r.mu.Lock()
	pid := r.participant.ID
	var pending []outboxEntry
	for _, e := range r.outbox {
		if !e.sent {
			pending = append(pending, e)
		}
	}
	r.mu.Unlock()

	for _, e := range pending {
		callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		err := r.client.SendMessage(callCtx, pid, e.msg.Body, e.msg.ClientRef)
		cancel()
		if err != nil {
			return
		}
		r.mu.Lock()
		for i := range r.outbox {
			if r.outbox[i].msg.ClientRef == e.msg.ClientRef {
				r.outbox[i].sent = true
			}
		}
		r.mu.Unlock()
	}
}

func (r *RoomSync) poll(ctx context.Context) {
	r.mu.Lock()
	pid := r.participant.ID
	chatOpen := r.chatOpen
	r.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	msgs, err := r.client.GetMessages(callCtx, pid)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			r.log.Debug().Err(err).Msg("message poll failed, retrying")
		}
		return
	}

	r.reconcile(msgs)
	if chatOpen {
		r.markAllRead(ctx)
	}
}

// reconcile replaces the local view with the authoritative server log and
// drops every outbox entry the server now carries. Matching prefers the
// echoed correlation id; for backends that do not echo it, an outgoing
// message matches the earliest unmatched server message with the same role
// and body created within MessageMatchWindow of the optimistic insert.
func (r *RoomSync) reconcile(server []model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make(map[uuid.UUID]bool, len(server))
	var remaining []outboxEntry
	for _, e := range r.outbox {
		found := false
		for i := range server {
			if matched[server[i].ID] {
				continue
			}
			if server[i].ClientRef != uuid.Nil {
				if server[i].ClientRef == e.msg.ClientRef {
					found = true
					matched[server[i].ID] = true
					break
				}
				continue
			}
			if server[i].Role == e.msg.Role &&
				server[i].Body == e.msg.Body &&
				absDuration(server[i].CreatedAt.Sub(e.msg.CreatedAt)) <= r.opts.MessageMatchWindow {
				found = true
				matched[server[i].ID] = true
				break
			}
		}
		if !found {
			remaining = append(remaining, e)
		}
	}

	// Preserve local read flags the server may lag behind on.
	read := make(map[uuid.UUID]bool, len(r.messages))
	for i := range r.messages {
		if r.messages[i].Read {
			read[r.messages[i].ID] = true
		}
	}
	r.messages = make([]model.Message, len(server))
	copy(r.messages, server)
	for i := range r.messages {
		if read[r.messages[i].ID] {
			r.messages[i].Read = true
		}
	}
	r.outbox = remaining
}

// Shutdown notifies the backend of a voluntary disconnect and stops every
// room loop. A kicked or ended room skips the disconnect call.
func (r *RoomSync) Shutdown(ctx context.Context) {
	r.mu.Lock()
	joined := r.joined
	terminal := r.local.Terminal()
	pid := r.participant.ID
	cancel := r.cancel
	r.mu.Unlock()

	if joined && !terminal {
		callCtx, callCancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		if err := r.client.Disconnect(callCtx, pid); err != nil {
			r.log.Debug().Err(err).Msg("disconnect notify failed")
		}
		callCancel()
	}
	if cancel != nil {
		cancel()
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
