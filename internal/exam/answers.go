package exam

import (
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/prova-engine/internal/model"
)

// AnswerStore holds the mutable per-question answer state for one attempt.
// Exactly one record exists per question id from construction until the
// attempt ends — mutators never create or delete records. All mutators are
// no-ops for question ids outside the session (stale UI callbacks) and after
// Freeze; there is no error channel.
type AnswerStore struct {
	mu      sync.RWMutex
	answers map[uuid.UUID]*model.Answer
	types   map[uuid.UUID]model.QuestionType
	order   []uuid.UUID
	frozen  bool
}

// NewAnswerStore creates one blank record per question.
func NewAnswerStore(questions []model.Question) *AnswerStore {
	s := &AnswerStore{
		answers: make(map[uuid.UUID]*model.Answer, len(questions)),
		types:   make(map[uuid.UUID]model.QuestionType, len(questions)),
		order:   make([]uuid.UUID, 0, len(questions)),
	}
	for i := range questions {
		q := &questions[i]
		s.answers[q.ID] = &model.Answer{QuestionID: q.ID}
		s.types[q.ID] = q.Type
		s.order = append(s.order, q.ID)
	}
	return s
}

// Select sets the chosen option. For single-choice questions any free-text
// value is cleared so the record reflects a single intent.
func (s *AnswerStore) Select(questionID, optionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.answers[questionID]
	if a == nil || s.frozen {
		return
	}
	id := optionID
	a.OptionID = &id
	if s.types[questionID] == model.QuestionTypeSingleChoice {
		a.FreeText = nil
	}
}

// Unselect clears the chosen option.
func (s *AnswerStore) Unselect(questionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.answers[questionID]
	if a == nil || s.frozen {
		return
	}
	a.OptionID = nil
}

// SetText sets the free-text value. An empty string counts as unanswered.
func (s *AnswerStore) SetText(questionID uuid.UUID, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.answers[questionID]
	if a == nil || s.frozen {
		return
	}
	v := value
	a.FreeText = &v
}

// ToggleFlag flips the flagged-for-review bit.
func (s *AnswerStore) ToggleFlag(questionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.answers[questionID]
	if a == nil || s.frozen {
		return
	}
	a.Flagged = !a.Flagged
}

// AccumulateTime adds to the question's cumulative time-spent counter.
func (s *AnswerStore) AccumulateTime(questionID uuid.UUID, seconds int) {
	if seconds <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.answers[questionID]
	if a == nil || s.frozen {
		return
	}
	a.TimeSpentSeconds += seconds
}

// Get returns a copy of the record for the given question id.
func (s *AnswerStore) Get(questionID uuid.UUID) (model.Answer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.answers[questionID]
	if a == nil {
		return model.Answer{}, false
	}
	return a.Clone(), true
}

// AnsweredCount counts records with a selected option or non-empty text.
// Always in [0, len(questions)].
func (s *AnswerStore) AnsweredCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.answers {
		if a.Answered() {
			n++
		}
	}
	return n
}

// Len returns the number of answer records, which equals the number of
// session questions at all times.
func (s *AnswerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answers)
}

// Snapshot returns a deep copy in question order, safe to hand to the
// autosave and submission paths without aliasing live mutation.
func (s *AnswerStore) Snapshot() []model.Answer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Answer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.answers[id].Clone())
	}
	return out
}

// Hydrate overwrites records from a previously saved snapshot. Entries for
// unknown question ids are dropped; known questions missing from the snapshot
// keep their blank record, so the one-record-per-question invariant holds.
// The caller must complete hydration before accepting user mutation.
func (s *AnswerStore) Hydrate(saved []model.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return
	}
	for i := range saved {
		if _, ok := s.answers[saved[i].QuestionID]; !ok {
			continue
		}
		restored := saved[i].Clone()
		s.answers[saved[i].QuestionID] = &restored
	}
}

// Freeze makes every mutator a no-op. Called once the attempt submits;
// a failed submission unfreezes so the student can keep editing.
func (s *AnswerStore) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}

// Unfreeze re-enables mutation after a failed submission.
func (s *AnswerStore) Unfreeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = false
}
