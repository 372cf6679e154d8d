package mockserver

import (
	"github.com/google/uuid"
	"github.com/stemsi/prova-engine/internal/model"
)

// SeedDemo loads a small sectioned, proctored session fixture and returns
// its session and assignment ids. Used by cmd/mockserver so a freshly
// started practice server is immediately usable.
func SeedDemo(store *Store) (sessionID, assignmentID uuid.UUID) {
	subject := uuid.New()
	questions := []model.Question{
		{
			ID:     uuid.New(),
			Prompt: "Which planet is closest to the sun?",
			Format: model.PromptFormatPlain,
			Type:   model.QuestionTypeSingleChoice,
			Options: []model.Option{
				{ID: uuid.New(), Text: "Mercury"},
				{ID: uuid.New(), Text: "Venus"},
				{ID: uuid.New(), Text: "Mars"},
			},
			SubjectID: subject,
		},
		{
			ID:     uuid.New(),
			Prompt: "2 + 2 = ?",
			Format: model.PromptFormatPlain,
			Type:   model.QuestionTypeSingleChoice,
			Options: []model.Option{
				{ID: uuid.New(), Text: "3"},
				{ID: uuid.New(), Text: "4"},
			},
			SubjectID: subject,
		},
		{
			ID:        uuid.New(),
			Prompt:    "Describe the water cycle in one sentence.",
			Format:    model.PromptFormatPlain,
			Type:      model.QuestionTypeFreeText,
			SubjectID: subject,
		},
	}

	session := &model.Session{
		ID:              uuid.New(),
		Title:           "Demo Admission Test",
		DurationMinutes: 30,
		Questions:       questions,
		Sections: []model.Section{
			{
				Name:            "Logic",
				DurationMinutes: 10,
				QuestionIDs:     []uuid.UUID{questions[0].ID, questions[1].ID},
				Position:        1,
			},
			{
				Name:            "Comprehension",
				DurationMinutes: 20,
				QuestionIDs:     []uuid.UUID{questions[2].ID},
				Position:        2,
			},
		},
		AccessMode: model.AccessModeProctored,
		Scoring:    model.ScoringWeights{Correct: 1, Wrong: -0.25, Blank: 0},
		Resumable:  true,
	}

	assignment := uuid.New()
	store.AddSession(session)
	store.AddRoom(assignment, session.ID)
	return session.ID, assignment
}
