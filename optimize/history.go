package optimize

// history is a fixed-capacity ring buffer of LBFGS correction pairs
// (sₖ, yₖ, ρₖ = 1/⟨yₖ,sₖ⟩). The oldest pair is evicted first; the buffer
// never holds more than m pairs. Storage is allocated once up front.
type history struct {
	m     int
	s, y  [][]float64
	rho   []float64
	head  int // slot of the newest pair
	count int
}

func newHistory(m, n int) *history {
	h := &history{
		m:   m,
		s:   make([][]float64, m),
		y:   make([][]float64, m),
		rho: make([]float64, m),
	}
	for i := 0; i < m; i++ {
		h.s[i] = make([]float64, n)
		h.y[i] = make([]float64, n)
	}
	return h
}

func (h *history) len() int { return h.count }

// push stores a new correction pair, evicting the oldest when full.
func (h *history) push(s, y []float64, rho float64) {
	h.head = (h.head + 1) % h.m
	copy(h.s[h.head], s)
	copy(h.y[h.head], y)
	h.rho[h.head] = rho
	if h.count < h.m {
		h.count++
	}
}

// pair returns the i-th newest correction pair, i = 0 being the newest.
func (h *history) pair(i int) (s, y []float64, rho float64) {
	if i < 0 || i >= h.count {
		panic("bound check error")
	}
	slot := (h.head - i + h.m) % h.m
	return h.s[slot], h.y[slot], h.rho[slot]
}

func (h *history) flush() {
	h.count = 0
	h.head = 0
}
