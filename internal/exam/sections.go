package exam

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/prova-engine/internal/model"
)

// Navigator computes the active question list for sectioned sessions, maps
// between global and section-local indices and enforces one-way section
// advancement. A completed section can never become active again.
//
// Non-sectioned sessions get one implicit section spanning every question, so
// the controller can treat both shapes uniformly.
type Navigator struct {
	mu        sync.RWMutex
	sections  []model.Section
	questions []uuid.UUID
	globalOf  map[uuid.UUID]int
	active    int
	completed []bool
	done      bool
}

// NewNavigator builds a navigator from session metadata. Sections are ordered
// by Position regardless of their order on the wire.
func NewNavigator(session *model.Session) *Navigator {
	n := &Navigator{
		questions: make([]uuid.UUID, 0, len(session.Questions)),
		globalOf:  make(map[uuid.UUID]int, len(session.Questions)),
	}
	for i := range session.Questions {
		n.questions = append(n.questions, session.Questions[i].ID)
		n.globalOf[session.Questions[i].ID] = i
	}
	if session.Sectioned() {
		n.sections = make([]model.Section, len(session.Sections))
		copy(n.sections, session.Sections)
		sort.SliceStable(n.sections, func(i, j int) bool {
			return n.sections[i].Position < n.sections[j].Position
		})
	} else {
		n.sections = []model.Section{{QuestionIDs: n.questions}}
	}
	n.completed = make([]bool, len(n.sections))
	return n
}

// SectionCount returns the number of sections (1 for non-sectioned sessions).
func (n *Navigator) SectionCount() int {
	return len(n.sections)
}

// Section returns the metadata of section i.
func (n *Navigator) Section(i int) (model.Section, bool) {
	if i < 0 || i >= len(n.sections) {
		return model.Section{}, false
	}
	return n.sections[i], true
}

// QuestionIDsInSection returns the ordered question ids of section i. A
// section with an empty mapping falls back to the full question list — a
// defensive default for malformed metadata, not a silent error.
func (n *Navigator) QuestionIDsInSection(i int) []uuid.UUID {
	if i < 0 || i >= len(n.sections) {
		return nil
	}
	ids := n.sections[i].QuestionIDs
	if len(ids) == 0 {
		ids = n.questions
	}
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	return out
}

// GlobalIndex converts a (section, local) address into a global question
// index. ok is false if either index is out of range or the question id is
// not part of the session.
func (n *Navigator) GlobalIndex(section, local int) (int, bool) {
	ids := n.QuestionIDsInSection(section)
	if local < 0 || local >= len(ids) {
		return 0, false
	}
	g, ok := n.globalOf[ids[local]]
	return g, ok
}

// Locate converts a global question index into its (section, local) address.
func (n *Navigator) Locate(global int) (section, local int, ok bool) {
	if global < 0 || global >= len(n.questions) {
		return 0, 0, false
	}
	id := n.questions[global]
	for si := range n.sections {
		for li, qid := range n.QuestionIDsInSection(si) {
			if qid == id {
				return si, li, true
			}
		}
	}
	return 0, 0, false
}

// Active returns the index of the currently active section.
func (n *Navigator) Active() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.active
}

// Completed reports whether section i has been concluded.
func (n *Navigator) Completed(i int) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return i >= 0 && i < len(n.completed) && n.completed[i]
}

// AllDone reports whether every section has been concluded.
func (n *Navigator) AllDone() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.done
}

// CanNavigate reports whether the question at the given global index belongs
// to the currently active section. Navigation outside it is rejected.
func (n *Navigator) CanNavigate(global int) bool {
	n.mu.RLock()
	active := n.active
	done := n.done
	n.mu.RUnlock()
	if done {
		return false
	}
	section, _, ok := n.Locate(global)
	return ok && section == active
}

// Advance marks the current section complete — irreversibly — and moves the
// active pointer to the next section. It returns done=true when no next
// section exists, which tells the controller to initiate submission.
func (n *Navigator) Advance() (nextSection int, done bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done {
		return n.active, true
	}
	n.completed[n.active] = true
	if n.active+1 >= len(n.sections) {
		n.done = true
		return n.active, true
	}
	n.active++
	return n.active, false
}

// Restore repositions the active section when resuming a saved attempt,
// marking all earlier sections complete. Out-of-range indices are ignored.
func (n *Navigator) Restore(active int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if active <= 0 || active >= len(n.sections) {
		return
	}
	for i := 0; i < active; i++ {
		n.completed[i] = true
	}
	n.active = active
}
