// Package history keeps the undo/redo step stacks for one table session.
// It is pure bookkeeping: the caller replays a popped step's changes through
// the update queue and patches the optimistic view; this package holds no
// knowledge of network state.
package history

import (
	"sync"
	"time"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"

	"github.com/google/uuid"
)

// DefaultCapacity bounds the undo stack; the oldest step is discarded on
// overflow.
const DefaultCapacity = 100

// Step groups related cell changes (a paste, a drag-fill) into one atomic,
// invertible unit. Undo replays every change's previous value in original
// order; redo replays the next values.
type Step struct {
	ID        string
	CreatedAt time.Time
	Changes   []interfaces.CellHistoryChange
}

// Stack is a bounded linear-history undo/redo stack.
type Stack struct {
	mu       sync.Mutex
	capacity int
	undo     []Step
	redo     []Step
}

// NewStack creates a stack with the given capacity; values < 1 fall back to
// DefaultCapacity.
func NewStack(capacity int) *Stack {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Stack{capacity: capacity}
}

// PushStep appends a step and clears the redo stack, since a new step
// invalidates any future redos. Empty change sets are a no-op; returns
// whether a step was recorded.
func (s *Stack) PushStep(changes []interfaces.CellHistoryChange) bool {
	if len(changes) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	step := Step{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Changes:   changes,
	}
	s.undo = append(s.undo, step)
	if len(s.undo) > s.capacity {
		s.undo = s.undo[len(s.undo)-s.capacity:]
	}
	s.redo = nil
	return true
}

// PopUndoStep removes and returns the most recent step, pushing it onto the
// redo stack.
func (s *Stack) PopUndoStep() (Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.undo) == 0 {
		return Step{}, false
	}
	step := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, step)
	return step, true
}

// PopRedoStep is the mirror of PopUndoStep.
func (s *Stack) PopRedoStep() (Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.redo) == 0 {
		return Step{}, false
	}
	step := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, step)
	return step, true
}

// CanUndo reports whether an undo step is available.
func (s *Stack) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo) > 0
}

// CanRedo reports whether a redo step is available.
func (s *Stack) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redo) > 0
}

// Depths returns the undo and redo stack sizes.
func (s *Stack) Depths() (undo, redo int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo), len(s.redo)
}
