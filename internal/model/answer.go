package model

import (
	"github.com/google/uuid"
)

// Answer is the mutable per-question answer record for the current attempt.
// Exactly one record exists per question id for the lifetime of the attempt.
// OptionID and FreeText are independent fields; the store clears FreeText when
// an option is selected on a single-choice question, but the model itself does
// not enforce exclusivity.
type Answer struct {
	QuestionID       uuid.UUID  `json:"question_id"`
	OptionID         *uuid.UUID `json:"option_id,omitempty"`
	FreeText         *string    `json:"free_text,omitempty"`
	Flagged          bool       `json:"flagged"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
}

// Answered reports whether the record counts as answered: a selected option
// or a non-empty free-text value.
func (a *Answer) Answered() bool {
	if a.OptionID != nil {
		return true
	}
	return a.FreeText != nil && *a.FreeText != ""
}

// Clone returns a deep copy safe to hand out without aliasing the original.
func (a *Answer) Clone() Answer {
	out := Answer{
		QuestionID:       a.QuestionID,
		Flagged:          a.Flagged,
		TimeSpentSeconds: a.TimeSpentSeconds,
	}
	if a.OptionID != nil {
		id := *a.OptionID
		out.OptionID = &id
	}
	if a.FreeText != nil {
		v := *a.FreeText
		out.FreeText = &v
	}
	return out
}
