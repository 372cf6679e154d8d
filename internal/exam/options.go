package exam

import (
	"errors"
	"time"
)

// Engine contract violations. Mutators on the answer store stay silent by
// design; these cover the operations that do report misuse.
var (
	// ErrAlreadyStarted is returned by Start on a controller that already ran.
	ErrAlreadyStarted = errors.New("exam: attempt already started")
	// ErrNotInProgress is returned when an operation needs a running attempt.
	ErrNotInProgress = errors.New("exam: attempt is not in progress")
	// ErrSectionLocked rejects navigation outside the active section.
	ErrSectionLocked = errors.New("exam: question is outside the active section")
	// ErrSubmitted is returned when the attempt has already been finalized.
	ErrSubmitted = errors.New("exam: attempt already submitted")
)

// Options tunes every periodic activity of the engine. The zero value is
// usable; unset fields fall back to the production defaults below.
type Options struct {
	// TickInterval drives the shared countdown scheduler. One second in
	// production; tests shrink it.
	TickInterval time.Duration
	// AutosaveInterval is the best-effort save-progress cadence.
	AutosaveInterval time.Duration
	// HeartbeatInterval is the proctoring presence cadence.
	HeartbeatInterval time.Duration
	// ActivationPollInterval paces room-activation polling before joining.
	ActivationPollInterval time.Duration
	// MessagePollOpen / MessagePollClosed pace the message channel while the
	// chat surface is open (fast) or closed (slow, badge updates only).
	MessagePollOpen   time.Duration
	MessagePollClosed time.Duration
	// MessageMatchWindow bounds the time skew accepted when reconciling an
	// optimistic local message against a polled one without a correlation id.
	MessageMatchWindow time.Duration
	// HeartbeatFailureThreshold is how many consecutive failed cycles flip
	// the reconnecting indication. Failures below it are silent.
	HeartbeatFailureThreshold int
	// CallTimeout bounds each remote collaborator call so a slow network
	// never stalls a periodic loop past its next cycle.
	CallTimeout time.Duration
	// EventBuffer is the capacity of the event channel. Events beyond a full
	// buffer are dropped rather than blocking the engine.
	EventBuffer int
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.AutosaveInterval <= 0 {
		o.AutosaveInterval = 30 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 3 * time.Second
	}
	if o.ActivationPollInterval <= 0 {
		o.ActivationPollInterval = 3 * time.Second
	}
	if o.MessagePollOpen <= 0 {
		o.MessagePollOpen = 2 * time.Second
	}
	if o.MessagePollClosed <= 0 {
		o.MessagePollClosed = 10 * time.Second
	}
	if o.MessageMatchWindow <= 0 {
		o.MessageMatchWindow = 15 * time.Second
	}
	if o.HeartbeatFailureThreshold <= 0 {
		o.HeartbeatFailureThreshold = 3
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	return o
}
