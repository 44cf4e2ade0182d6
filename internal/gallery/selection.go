package gallery

import (
	"sync"

	"github.com/jun/scandrive/internal/adapter"
)

type SelectionState int

const (
	SelectedNone SelectionState = iota
	// SelectedSome renders as an indeterminate checkbox.
	SelectedSome
	SelectedAll
)

// Selection is an ordered set of file IDs.
type Selection struct {
	mu    sync.Mutex
	order []string
	ids   map[string]struct{}
}

func NewSelection(ids ...string) *Selection {
	s := &Selection{ids: map[string]struct{}{}}
	for _, id := range ids {
		s.add(id)
	}
	return s
}

func (s *Selection) add(id string) {
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s *Selection) remove(id string) {
	if _, ok := s.ids[id]; !ok {
		return
	}
	delete(s.ids, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Toggle flips id and reports whether it is now selected.
func (s *Selection) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		s.remove(id)
		return false
	}
	s.add(id)
	return true
}

func (s *Selection) Remove(id string) {
	s.mu.Lock()
	s.remove(id)
	s.mu.Unlock()
}

// SelectAll selects every stub, or clears the selection when all are already selected.
func (s *Selection) SelectAll(stubs []adapter.FileStub) {
	if s.State(stubs) == SelectedAll {
		s.Clear()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stubs {
		s.add(st.ID)
	}
}

func (s *Selection) Clear() {
	s.mu.Lock()
	s.order = nil
	s.ids = map[string]struct{}{}
	s.mu.Unlock()
}

func (s *Selection) Selected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// IDs returns the selected IDs in selection order.
func (s *Selection) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// State reports how much of visible is selected.
func (s *Selection) State(visible []adapter.FileStub) SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range visible {
		if _, ok := s.ids[st.ID]; ok {
			n++
		}
	}
	switch {
	case n == 0:
		return SelectedNone
	case n == len(visible):
		return SelectedAll
	default:
		return SelectedSome
	}
}
