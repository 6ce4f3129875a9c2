// Package event_loop runs callbacks one at a time on a single goroutine.
//
// Radio events and application requests are both funnelled through the
// loop, so the code they invoke never runs concurrently with itself.
package event_loop

import (
	"context"
	"sync"
	"time"
)

type CallbackFunc func(el EventLoop)

type EventLoop interface {
	Run()
	Quit()
	Put(callback CallbackFunc)
	Post(callback CallbackFunc, scheduledBy time.Time)
	Call(ctx context.Context, callback CallbackFunc) error
}

type event struct {
	callback    CallbackFunc
	scheduledBy time.Time
	next        *event
}

type event_loop struct {
	ctx    context.Context
	cancel context.CancelFunc

	wake chan bool

	mutex     sync.Mutex
	queue     *event
	queueTail *event
}

func NewEventLoop() EventLoop {
	ctx, cancel := context.WithCancel(context.Background())
	return &event_loop{
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan bool, 1),
	}
}

// Run processes events until Quit is called. It must be called once.
func (el *event_loop) Run() {
	var sleepDuration time.Duration = 0

	timer := time.NewTimer(sleepDuration)
	defer timer.Stop()

loop:
	for {
		select {
		case <-el.ctx.Done():
			break loop
		case <-el.wake:
			sleepDuration = el.processEvents()
		case <-timer.C:
			sleepDuration = el.processEvents()
		}

		if el.ctx.Err() != nil {
			break
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(sleepDuration)
	}
}

func (el *event_loop) processEvents() time.Duration {
	el.mutex.Lock()
	ev := el.queue
	el.queue = nil
	el.queueTail = nil
	el.mutex.Unlock()

	var sleepDuration time.Duration = -1

	for ev != nil {
		next := ev.next
		ev.next = nil

		if el.ctx.Err() != nil {
			// Loop is quitting, drop whatever is left
			return 0
		}

		if !time.Now().Before(ev.scheduledBy) {
			ev.callback(el)

			// The callback may have queued more events
			sleepDuration = 0
		} else {
			postponeBy := time.Until(ev.scheduledBy)
			if sleepDuration < 0 || postponeBy < sleepDuration {
				sleepDuration = postponeBy
			}

			el.enqueue(ev)
		}

		ev = next
	}

	if sleepDuration < 0 {
		// Nothing pending
		sleepDuration = 100 * time.Millisecond
	}

	return sleepDuration
}

func (el *event_loop) enqueue(ev *event) {
	el.mutex.Lock()
	defer el.mutex.Unlock()

	if el.queue == nil {
		el.queue = ev
		el.queueTail = ev
	} else {
		el.queueTail.next = ev
		el.queueTail = ev
	}
}

func (el *event_loop) wakeUp() {
	select {
	case el.wake <- true:
	default:
		// Already woken up
	}
}

func (el *event_loop) Quit() {
	if el.cancel != nil {
		el.cancel()
	}
}

func (el *event_loop) Put(callback CallbackFunc) {
	el.Post(callback, time.Now())
}

func (el *event_loop) Post(callback CallbackFunc, scheduledBy time.Time) {
	el.enqueue(&event{
		callback:    callback,
		scheduledBy: scheduledBy,
	})
	el.wakeUp()
}

// Call runs the callback on the loop and waits for it to return.
// It must not be used from within a loop callback.
func (el *event_loop) Call(ctx context.Context, callback CallbackFunc) error {
	done := make(chan struct{})

	el.Put(func(l EventLoop) {
		defer close(done)
		callback(l)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-el.ctx.Done():
		return context.Canceled
	}
}
