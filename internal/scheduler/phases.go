package scheduler

import "sync"

// DefaultPhases is the construction stage order used when none is configured.
var DefaultPhases = []Phase{
	"planning",
	"permitting",
	"demolition",
	"foundation",
	"framing",
	"rough_in",
	"inspection",
	"finishing",
	"final_inspection",
}

// Sequencer orders the graph's tasks into phases and owns the phase pointer.
type Sequencer struct {
	mu      sync.Mutex
	graph   *TaskGraph
	phases  []Phase
	current int // index into phases; len(phases) once the project is complete
}

// NewSequencer creates a sequencer over the graph's phase order, pointing at
// the first phase.
func NewSequencer(graph *TaskGraph) *Sequencer {
	return &Sequencer{
		graph:  graph,
		phases: graph.Phases(),
	}
}

// Phases returns the declared phase order.
func (s *Sequencer) Phases() []Phase {
	return append([]Phase(nil), s.phases...)
}

// TasksInPhase returns all tasks whose phase equals the argument.
func (s *Sequencer) TasksInPhase(phase Phase) []*Task {
	return s.graph.TasksInPhase(phase)
}

// Exhausted reports whether no task of the phase is pending, ready or in
// progress. Blocked tasks cannot run and do not keep a phase open; an empty
// phase is exhausted.
func (s *Sequencer) Exhausted(phase Phase) bool {
	return len(s.Remaining(phase)) == 0
}

// Remaining returns the IDs of tasks still holding the phase open.
func (s *Sequencer) Remaining(phase Phase) []string {
	var ids []string
	for _, t := range s.graph.TasksInPhase(phase) {
		if IsActive(t.Status) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// ActivePhase returns the first phase in declared order that is not yet
// exhausted, or PhaseComplete.
func (s *Sequencer) ActivePhase() Phase {
	if i := s.firstOpen(); i < len(s.phases) {
		return s.phases[i]
	}
	return PhaseComplete
}

// Current returns the phase the pointer rests on, or PhaseComplete.
func (s *Sequencer) Current() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current >= len(s.phases) {
		return PhaseComplete
	}
	return s.phases[s.current]
}

// Advance moves the pointer past the current phase once it is exhausted.
// If the current phase still has work, Advance is a no-op, or returns a
// *PhaseNotReadyError when requireExhausted is set. The pointer lands on the
// active phase, so empty phases are passed over and a phase reopened by a
// retry is picked up again.
func (s *Sequencer) Advance(requireExhausted bool) (Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < len(s.phases) {
		cur := s.phases[s.current]
		if remaining := s.Remaining(cur); len(remaining) > 0 {
			if requireExhausted {
				return cur, &PhaseNotReadyError{Phase: cur, Remaining: remaining}
			}
			return cur, nil
		}
	}

	s.current = s.firstOpen()
	if s.current >= len(s.phases) {
		return PhaseComplete, nil
	}
	return s.phases[s.current], nil
}

// Reset moves the pointer back to the first phase.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = 0
}

func (s *Sequencer) firstOpen() int {
	for i, p := range s.phases {
		if !s.Exhausted(p) {
			return i
		}
	}
	return len(s.phases)
}
