package model

import (
	"github.com/google/uuid"
)

// AccessMode enumerates how a session is delivered to the student.
type AccessMode string

const (
	AccessModeOpen      AccessMode = "OPEN"
	AccessModeAssigned  AccessMode = "ASSIGNED"
	AccessModeProctored AccessMode = "PROCTORED"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeFreeText     QuestionType = "FREE_TEXT"
)

// PromptFormat enumerates how a question prompt should be interpreted.
type PromptFormat string

const (
	PromptFormatPlain    PromptFormat = "PLAIN"
	PromptFormatMarkdown PromptFormat = "MARKDOWN"
)

// ScoringWeights holds the per-answer point values. The engine never computes
// a score from these; they are carried for display only.
type ScoringWeights struct {
	Correct float64 `json:"correct"`
	Wrong   float64 `json:"wrong"`
	Blank   float64 `json:"blank"`
}

// Option is a selectable choice of a single-choice question.
type Option struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}

// Question is a single exam question. Immutable once the session is loaded.
type Question struct {
	ID        uuid.UUID    `json:"id"`
	Prompt    string       `json:"prompt"`
	Format    PromptFormat `json:"format"`
	Type      QuestionType `json:"type"`
	Options   []Option     `json:"options,omitempty"`
	SubjectID uuid.UUID    `json:"subject_id"`
}

// Section is a time-boxed, non-reversible portion of a sectioned session.
// Position is strictly monotonic among the session's sections.
type Section struct {
	Name            string      `json:"name"`
	DurationMinutes int         `json:"duration_minutes"`
	QuestionIDs     []uuid.UUID `json:"question_ids"`
	Position        int         `json:"position"`
}

// Session describes one exam as fetched from the backend at attempt start.
// DurationMinutes of zero means the session is untimed.
type Session struct {
	ID              uuid.UUID      `json:"id"`
	Title           string         `json:"title"`
	DurationMinutes int            `json:"duration_minutes"`
	Questions       []Question     `json:"questions"`
	Sections        []Section      `json:"sections,omitempty"`
	AccessMode      AccessMode     `json:"access_mode"`
	AntiCheat       bool           `json:"anti_cheat"`
	Scoring         ScoringWeights `json:"scoring"`
	Resumable       bool           `json:"resumable"`
}

// Sectioned reports whether the session defines sections.
func (s *Session) Sectioned() bool {
	return len(s.Sections) > 0
}

// Timed reports whether the session has a global duration budget.
func (s *Session) Timed() bool {
	return s.DurationMinutes > 0
}

// QuestionByID returns the question with the given id, or nil.
func (s *Session) QuestionByID(id uuid.UUID) *Question {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}
