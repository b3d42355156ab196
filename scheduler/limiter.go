package scheduler

import (
	"context"
	"sync"
)

// jobSlots bounds the number of jobs executing at once and keeps count of
// every admitted job until it has reported, so Stop can wait for them.
type jobSlots struct {
	admitted sync.WaitGroup
	slots    chan struct{}
}

func newJobSlots(n int) *jobSlots {
	if n < 1 {
		n = 1
	}
	return &jobSlots{slots: make(chan struct{}, n)}
}

// admit must happen before wait is called; the scheduler admits jobs
// under its lock and refuses them once stopping.
func (l *jobSlots) admit() { l.admitted.Add(1) }

// done marks an admitted job as reported.
func (l *jobSlots) done() { l.admitted.Done() }

// acquire takes a slot, giving up when ctx ends first.
func (l *jobSlots) acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *jobSlots) release() { <-l.slots }

// busy is the number of slots taken.
func (l *jobSlots) busy() int { return len(l.slots) }

func (l *jobSlots) wait() { l.admitted.Wait() }
