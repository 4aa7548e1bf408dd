package consensus

// Pool bounds the number of scorer calls running at once across every
// partition. Each decision pass borrows slots for its own fan-out and waits
// for its own tasks; passes do not coordinate with each other.
type Pool struct {
	sem chan struct{}
}

// NewPool builds a pool admitting size concurrent tasks. A non-positive
// size falls back to 5, enough for one decision pass.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 5
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Run executes fn inline once a slot is free and releases the slot when fn
// returns.
func (p *Pool) Run(fn func()) {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()
	fn()
}

// Size reports the pool capacity.
func (p *Pool) Size() int {
	return cap(p.sem)
}
