package render

// morphState tracks the mouth shape seen on the previous frame and the time
// the current shape first appeared. It advances one frame at a time, so a
// worker starting mid-sequence replays the earlier frames to rebuild it.
type morphState struct {
	previous string
	current  string
	switched float64
}

func newMorphState(initial string) morphState {
	return morphState{previous: initial, current: initial}
}

func (m *morphState) advance(shape string, t float64) {
	if shape == m.current {
		return
	}

	m.previous = m.current
	m.current = shape
	m.switched = t
}

// blend returns the shape being faded out and the weight of the current
// shape. Outside the morph window the weight is 1 and from is empty.
func (m *morphState) blend(t, duration float64) (from string, weight float64) {
	if duration <= 0 || m.previous == m.current {
		return "", 1
	}

	elapsed := t - m.switched
	if elapsed < 0 || elapsed >= duration {
		return "", 1
	}

	return m.previous, elapsed / duration
}
