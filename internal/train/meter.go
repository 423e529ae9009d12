package train

// lossMeter keeps the running mean of the batch losses of one epoch.
type lossMeter struct {
	sum float64
	n   int
}

func (m *lossMeter) add(v float32) {
	m.sum += float64(v)
	m.n++
}

func (m *lossMeter) mean() float32 {
	if m.n == 0 {
		return 0
	}
	return float32(m.sum / float64(m.n))
}

func (m *lossMeter) reset() {
	*m = lossMeter{}
}
