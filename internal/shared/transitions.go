package shared

// Transitions maps a status to the statuses it may move to. A status absent
// from the map, or mapped to nothing, is terminal.
type Transitions[S ~string] map[S][]S

// Allows reports whether from may move to to.
func (t Transitions[S]) Allows(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves from.
func (t Transitions[S]) IsTerminal(from S) bool {
	return len(t[from]) == 0
}

// Validate returns an InvalidTransition error describing the rejected move.
func (t Transitions[S]) Validate(entity, id string, from, to S) error {
	if t.Allows(from, to) {
		return nil
	}
	return InvalidTransition(entity, id, string(from), string(to))
}
