package hal

import "sync"

// MemOutput is an in-memory Output for tests and the bench simulator.
type MemOutput struct {
	mu          sync.Mutex
	high        bool
	transitions int
}

// NewMemOutput returns a MemOutput driven low.
func NewMemOutput() *MemOutput {
	return &MemOutput{}
}

// Set implements Output.
func (o *MemOutput) Set(high bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.high != high {
		o.transitions++
	}
	o.high = high
}

// High reports the current line level.
func (o *MemOutput) High() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.high
}

// Transitions returns the number of level changes observed.
func (o *MemOutput) Transitions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transitions
}

// MemEdgeSource is an in-memory EdgeSource. Edges are injected with
// Pulse and delivered synchronously to the installed handler.
type MemEdgeSource struct {
	mu      sync.Mutex
	handler EdgeHandler
	closed  bool
}

// NewMemEdgeSource returns an idle MemEdgeSource.
func NewMemEdgeSource() *MemEdgeSource {
	return &MemEdgeSource{}
}

// Watch implements EdgeSource.
func (s *MemEdgeSource) Watch(h EdgeHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.handler != nil {
		return ErrAlreadyWatch
	}
	s.handler = h
	return nil
}

// Close implements EdgeSource.
func (s *MemEdgeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.handler = nil
	return nil
}

// Pulse delivers a rising edge with the given timestamp. Edges injected
// before Watch or after Close are dropped, matching a real line with no
// interrupt attached.
func (s *MemEdgeSource) Pulse(timestampMicros uint64) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(timestampMicros)
	}
}

// ManualClock is a Clock advanced by hand, for tests and virtual-time
// simulation.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock returns a ManualClock at the given start time.
func NewManualClock(startMicros uint64) *ManualClock {
	return &ManualClock{now: startMicros}
}

// NowMicros implements Clock.
func (c *ManualClock) NowMicros() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d microseconds and returns the new
// time.
func (c *ManualClock) Advance(d uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	return c.now
}

// Set moves the clock to an absolute time.
func (c *ManualClock) Set(nowMicros uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = nowMicros
}
