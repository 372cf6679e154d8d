package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation ErrCode = "VALIDATION_ERROR"
	ErrInvalidID  ErrCode = "INVALID_ID"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Attempt-specific ──────────────────────────────────────────────
	ErrAttemptSubmitted ErrCode = "ATTEMPT_ALREADY_SUBMITTED"
	ErrRoomNotActive    ErrCode = "ROOM_NOT_ACTIVE"
	ErrParticipantGone  ErrCode = "PARTICIPANT_NOT_IN_ROOM"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid id format."
	case ErrNotFound:
		return "Resource not found."
	case ErrAttemptSubmitted:
		return "This attempt has already been submitted."
	case ErrRoomNotActive:
		return "The virtual room is not active."
	case ErrParticipantGone:
		return "Participant is no longer part of this room."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
