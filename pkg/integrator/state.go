package integrator

// State is one slot of the integration history ring: the solution at a
// simulated time and the step taken to reach it. Solution vectors are
// 1-based to match the sparse matrix convention; index 0 is ground.
type State struct {
	Time     float64
	Delta    float64
	Solution []float64
}

func newState(size int) *State {
	return &State{Solution: make([]float64, size+1)}
}

// rotate shifts the history ring by one slot. The oldest state is
// recycled as the new current slot; its solution is seeded from the
// just-accepted point so devices see a sane value before prediction.
func (m *Method) rotate() {
	n := len(m.states)
	oldest := m.states[n-1]
	copy(m.states[1:], m.states[:n-1])
	m.states[0] = oldest
	copy(m.states[0].Solution, m.states[1].Solution)
	m.states[0].Time = m.states[1].Time
	m.states[0].Delta = m.states[1].Delta

	for _, d := range m.derivs {
		d.rotate()
	}
}
