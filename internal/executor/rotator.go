package executor

import (
	"errors"
	"sync"

	"github.com/alanyoungcy/spreadbot/internal/domain"
)

// Poller is one credential set and the exchange session authenticated with
// it. Index 0 is the primary; only the primary may confirm offers.
type Poller struct {
	Index      int
	Credential domain.Credential
	Exchange   domain.Exchange
}

// Primary reports whether p holds execution rights.
func (p Poller) Primary() bool {
	return p.Index == 0
}

// Name returns the credential name used in logs and quota keys.
func (p Poller) Name() string {
	return p.Credential.Name
}

// Rotator hands out pollers round-robin. The index advances once per
// completed attempt and is forced back to the primary when a helper spots
// an opportunity.
type Rotator struct {
	mu      sync.Mutex
	pollers []Poller
	idx     int
}

// NewRotator builds a rotator over pollers; pollers[0] must be the primary.
func NewRotator(pollers []Poller) (*Rotator, error) {
	if len(pollers) == 0 {
		return nil, errors.New("executor: rotator needs at least the primary credential")
	}
	ps := make([]Poller, len(pollers))
	for i, p := range pollers {
		p.Index = i
		ps[i] = p
	}
	return &Rotator{pollers: ps}, nil
}

// Next returns the poller for the upcoming attempt without advancing.
func (r *Rotator) Next() Poller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pollers[r.idx]
}

// Advance moves to the next poller, wrapping around.
func (r *Rotator) Advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idx = (r.idx + 1) % len(r.pollers)
}

// Reset points the rotation back at the primary.
func (r *Rotator) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idx = 0
}

// Index returns the current rotation index.
func (r *Rotator) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idx
}

// Len returns the number of pollers.
func (r *Rotator) Len() int {
	return len(r.pollers)
}

// Primary returns the execution-authorized poller.
func (r *Rotator) Primary() Poller {
	return r.pollers[0]
}
