package testutil

import "sync"

// FixedRandom is a deterministic io.Reader standing in for crypto/rand.
//
// It yields seed, seed+1, seed+2, ... (mod 256), so generate() produces the
// same tokens on every run of a scenario.
//
// Thread-safety: FixedRandom is safe for concurrent use.
type FixedRandom struct {
	mu   sync.Mutex
	next byte
}

// NewFixedRandom creates a reader starting at seed.
func NewFixedRandom(seed byte) *FixedRandom {
	return &FixedRandom{next: seed}
}

// Read fills p and never fails.
func (r *FixedRandom) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range p {
		p[i] = r.next
		r.next++
	}
	return len(p), nil
}
