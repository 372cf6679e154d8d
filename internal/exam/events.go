package exam

// EventType enumerates what the engine publishes on its event channel.
type EventType string

const (
	// EventStateChanged carries the controller's new lifecycle state.
	EventStateChanged EventType = "STATE_CHANGED"
	// EventRoomStateChanged carries the room synchronizer's new state.
	EventRoomStateChanged EventType = "ROOM_STATE_CHANGED"
	// EventSectionAdvanced fires after a section concludes, once the timer
	// reset and question repositioning are complete.
	EventSectionAdvanced EventType = "SECTION_ADVANCED"
	// EventUnreadMessages carries the current unread badge count.
	EventUnreadMessages EventType = "UNREAD_MESSAGES"
	// EventReconnecting flips when proctoring connectivity degrades or heals.
	EventReconnecting EventType = "RECONNECTING"
	// EventSubmitFailed reports a recoverable submission failure; the attempt
	// stays editable and may be retried.
	EventSubmitFailed EventType = "SUBMIT_FAILED"
	// EventKicked reports an authoritative removal by the proctor.
	EventKicked EventType = "KICKED"
)

// Event is one item on the engine's event channel. Surfaces that need badge
// counts or state transitions consume this channel instead of reaching into
// the engine; there is no ambient singleton.
type Event struct {
	Type         EventType
	State        State
	RoomState    RoomState
	Section      int
	Unread       int
	Reconnecting bool
	Reason       string
	Err          error
}
