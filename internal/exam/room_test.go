package exam

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/prova-engine/internal/backend"
	"github.com/stemsi/prova-engine/internal/model"
)

// eventSink collects published events for assertions.
type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) count(t EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func startRoomSync(t *testing.T, client *fakeClient) (*RoomSync, *eventSink, context.CancelFunc) {
	t.Helper()
	sink := &eventSink{}
	r := newRoomSync(
		fastOpts().withDefaults(),
		client,
		testLogger(),
		uuid.New(), uuid.New(),
		func() (int, int) { return 0, 0 },
		func(time.Time) {},
		func(RoomState, string) {},
		sink.publish,
	)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	return r, sink, cancel
}

func TestRoomSyncKickedWinsOverActiveRoom(t *testing.T) {
	client := newFakeClient(testSession())
	r, sink, cancel := startRoomSync(t, client)
	defer cancel()

	waitFor(t, time.Second, func() bool { return r.State() == RoomWaitingForReady })

	// The server reports the room still running but the participant removed.
	client.setHeartbeat(backend.HeartbeatResult{
		Kicked:       true,
		KickedReason: "inactivity",
		RoomStatus:   model.RoomStatusStarted,
	}, nil)

	waitFor(t, time.Second, func() bool { return r.State() == RoomKicked })

	p := r.Participant()
	if !p.Kicked || p.KickedReason != "inactivity" {
		t.Fatalf("participant %+v, want kicked with reason inactivity", p)
	}
	if sink.count(EventKicked) != 1 {
		t.Fatalf("kicked event published %d times, want 1", sink.count(EventKicked))
	}

	// Kicked skips the voluntary disconnect notification.
	r.Shutdown(context.Background())
	if _, _, d := client.counts(); d != 0 {
		t.Fatalf("disconnect called %d times after kick, want 0", d)
	}
}

func TestRoomSyncReconnectingThreshold(t *testing.T) {
	client := newFakeClient(testSession())
	r, sink, cancel := startRoomSync(t, client)
	defer cancel()

	waitFor(t, time.Second, func() bool { return r.State() == RoomWaitingForReady })

	client.setHeartbeat(backend.HeartbeatResult{}, errors.New("network down"))
	waitFor(t, time.Second, r.Reconnecting)

	client.setHeartbeat(backend.HeartbeatResult{RoomStatus: model.RoomStatusWaiting}, nil)
	waitFor(t, time.Second, func() bool { return !r.Reconnecting() })

	if got := sink.count(EventReconnecting); got != 2 {
		t.Fatalf("reconnecting events %d, want 2 (on and off)", got)
	}
	if r.State().Terminal() {
		t.Fatal("transient heartbeat failures must never end the session locally")
	}
}

func TestRoomSyncHandoffOnStart(t *testing.T) {
	client := newFakeClient(testSession())
	var (
		mu      sync.Mutex
		started []time.Time
	)
	sink := &eventSink{}
	startedAt := time.Now().Add(-2 * time.Second)
	r := newRoomSync(
		fastOpts().withDefaults(),
		client,
		testLogger(),
		uuid.New(), uuid.New(),
		func() (int, int) { return 0, 0 },
		func(ts time.Time) {
			mu.Lock()
			started = append(started, ts)
			mu.Unlock()
		},
		func(RoomState, string) {},
		sink.publish,
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	waitFor(t, time.Second, func() bool { return r.State() == RoomWaitingForReady })

	if err := r.SetReady(context.Background()); err != nil {
		t.Fatalf("SetReady: %v", err)
	}
	if r.State() != RoomWaitingForStart {
		t.Fatalf("state %s after ready, want WAITING_FOR_START", r.State())
	}

	client.setHeartbeat(backend.HeartbeatResult{
		RoomStatus: model.RoomStatusStarted,
		StartedAt:  &startedAt,
		Ready:      true,
	}, nil)

	waitFor(t, time.Second, func() bool { return r.State() == RoomInProgress })
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(started) > 0
	})

	// Repeated STARTED heartbeats must not hand off twice.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(started) != 1 {
		t.Fatalf("handoff fired %d times, want 1", len(started))
	}
	if !started[0].Equal(startedAt) {
		t.Fatalf("handoff timestamp %v, want server's %v", started[0], startedAt)
	}
}

func TestRoomSyncWaitsForActivation(t *testing.T) {
	client := newFakeClient(testSession())
	client.mu.Lock()
	client.roomStatus = model.RoomStatusInactive
	client.mu.Unlock()

	r, _, cancel := startRoomSync(t, client)
	defer cancel()

	waitFor(t, time.Second, func() bool { return r.State() == RoomWaitingInactive })

	client.mu.Lock()
	client.roomStatus = model.RoomStatusWaiting
	client.mu.Unlock()

	waitFor(t, time.Second, func() bool { return r.State() == RoomWaitingForReady })
}

func TestReconcileByClientRef(t *testing.T) {
	r := &RoomSync{opts: fastOpts().withDefaults()}
	ref := uuid.New()
	r.outbox = []outboxEntry{{msg: model.Message{
		ID:        uuid.New(),
		Role:      model.MessageRoleStudent,
		Body:      "clock?",
		CreatedAt: time.Now(),
		ClientRef: ref,
	}, sent: true}}

	server := []model.Message{{
		ID:        uuid.New(),
		Role:      model.MessageRoleStudent,
		Body:      "clock?",
		CreatedAt: time.Now(),
		ClientRef: ref,
	}}
	r.reconcile(server)

	if len(r.outbox) != 0 {
		t.Fatal("echoed client ref did not clear the outbox entry")
	}
	if got := len(r.Messages()); got != 1 {
		t.Fatalf("message view has %d entries, want 1 (no duplicate)", got)
	}
}

func TestReconcileHeuristicMatch(t *testing.T) {
	r := &RoomSync{opts: fastOpts().withDefaults()}
	now := time.Now()
	r.outbox = []outboxEntry{{msg: model.Message{
		ID:        uuid.New(),
		Role:      model.MessageRoleStudent,
		Body:      "done early",
		CreatedAt: now,
		ClientRef: uuid.New(),
	}, sent: true}}

	// Server does not echo the correlation id but carries the same body.
	server := []model.Message{{
		ID:        uuid.New(),
		Role:      model.MessageRoleStudent,
		Body:      "done early",
		CreatedAt: now.Add(2 * time.Second),
	}}
	r.reconcile(server)

	if len(r.outbox) != 0 {
		t.Fatal("same role and body inside the match window did not reconcile")
	}
}

func TestReconcileKeepsUnmatchedOutbox(t *testing.T) {
	r := &RoomSync{opts: fastOpts().withDefaults()}
	now := time.Now()
	r.outbox = []outboxEntry{{msg: model.Message{
		ID:        uuid.New(),
		Role:      model.MessageRoleStudent,
		Body:      "still pending",
		CreatedAt: now,
		ClientRef: uuid.New(),
	}}}

	// Unrelated proctor message; the optimistic insert must survive.
	server := []model.Message{{
		ID:        uuid.New(),
		Role:      model.MessageRoleProctor,
		Body:      "10 minutes left",
		CreatedAt: now,
	}}
	r.reconcile(server)

	if len(r.outbox) != 1 {
		t.Fatal("unmatched outbox entry was dropped")
	}
	if got := len(r.Messages()); got != 2 {
		t.Fatalf("message view has %d entries, want server log plus pending insert", got)
	}
}

func TestReconcilePreservesLocalReadFlags(t *testing.T) {
	r := &RoomSync{opts: fastOpts().withDefaults()}
	id := uuid.New()
	r.messages = []model.Message{{ID: id, Role: model.MessageRoleProctor, Body: "hello", Read: true}}

	// The server still reports the message unread.
	r.reconcile([]model.Message{{ID: id, Role: model.MessageRoleProctor, Body: "hello"}})

	msgs := r.Messages()
	if len(msgs) != 1 || !msgs[0].Read {
		t.Fatal("locally read message reverted to unread after poll")
	}
}
