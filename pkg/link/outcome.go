package link

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type OutcomeStatus int32

const (
	OutcomePending OutcomeStatus = iota
	// OutcomeDelivered means the transmission completed while at least
	// one gateway was reachable.
	OutcomeDelivered
	// OutcomeDisconnected means the transmission completed into a link
	// with no reachable gateway.
	OutcomeDisconnected
	// OutcomeSuperseded means another uplink was accepted before this
	// one reported completion.
	OutcomeSuperseded
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomePending:
		return "pending"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeDisconnected:
		return "disconnected"
	case OutcomeSuperseded:
		return "superseded"
	}
	return "unknown"
}

// Outcome tracks one accepted uplink until the radio reports it done.
type Outcome struct {
	Port        uint8
	Size        int
	SubmittedAt time.Time

	status atomic.Int32
	done   chan struct{}
	once   sync.Once
}

func newOutcome(port uint8, size int) *Outcome {
	return &Outcome{
		Port:        port,
		Size:        size,
		SubmittedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

func (o *Outcome) Status() OutcomeStatus {
	return OutcomeStatus(o.status.Load())
}

// Delivered is false until the uplink has been confirmed by a
// transmission done event with reachable gateways. Every status other
// than pending is final.
func (o *Outcome) Delivered() bool {
	return o.Status() == OutcomeDelivered
}

// Done is closed once the outcome is no longer pending.
func (o *Outcome) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the outcome is resolved or ctx is done.
func (o *Outcome) Wait(ctx context.Context) (bool, error) {
	select {
	case <-o.done:
		return o.Delivered(), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// resolve settles a pending outcome. Later calls are ignored.
func (o *Outcome) resolve(status OutcomeStatus) bool {
	resolved := false
	o.once.Do(func() {
		o.status.Store(int32(status))
		close(o.done)
		resolved = true
	})
	return resolved
}
