// Package loop is a single goroutine cooperative scheduler. Timer callbacks
// and posted work never run concurrently with each other.
package loop

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultQueueSize is the capacity of the posted work queue.
const DefaultQueueSize = 64

type timer struct {
	interval func() time.Duration
	fn       func()
	next     time.Time
}

// Loop runs scheduled callbacks one at a time on the goroutine calling Run.
type Loop struct {
	mu      sync.Mutex // guards timers before Run; afterwards only the loop touches them
	timers  []*timer
	posts   chan func()
	done    chan struct{}
	running bool
	now     func() time.Time
}

// New returns an idle loop.
func New() *Loop {
	return &Loop{
		posts: make(chan func(), DefaultQueueSize),
		done:  make(chan struct{}),
		now:   time.Now,
	}
}

// Schedule registers fn to run every interval(). The interval is re-read
// after each run, so a changed value takes effect from the next period.
// Schedule may be called before Run or from within a loop callback.
func (l *Loop) Schedule(interval func() time.Duration, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timers = append(l.timers, &timer{
		interval: interval,
		fn:       fn,
		next:     l.now().Add(sanitize(interval())),
	})
}

// Every is Schedule with a fixed interval.
func (l *Loop) Every(d time.Duration, fn func()) {
	l.Schedule(func() time.Duration { return d }, fn)
}

// Post queues fn to run on the loop between timer callbacks. It is safe to
// call from any goroutine, but not from a loop callback when the queue is
// full. It returns false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.posts <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run executes timers and posted work until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.mu.Unlock()
	defer close(l.done)

	wake := time.NewTimer(time.Hour)
	defer wake.Stop()

	for {
		wake.Reset(l.untilNext())

		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.posts:
			l.safely(fn)
		case <-wake.C:
			l.fireDue()
		}

		if !wake.Stop() {
			select {
			case <-wake.C:
			default:
			}
		}
	}
}

func (l *Loop) untilNext() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timers) == 0 {
		return time.Hour
	}
	next := l.timers[0].next
	for _, t := range l.timers[1:] {
		if t.next.Before(next) {
			next = t.next
		}
	}
	d := next.Sub(l.now())
	if d < 0 {
		d = 0
	}
	return d
}

// fireDue runs every timer whose deadline has passed, in registration order.
// A timer that fell behind fires once and restarts from now.
func (l *Loop) fireDue() {
	l.mu.Lock()
	due := make([]*timer, 0, len(l.timers))
	now := l.now()
	for _, t := range l.timers {
		if !t.next.After(now) {
			due = append(due, t)
		}
	}
	l.mu.Unlock()

	for _, t := range due {
		l.safely(t.fn)

		l.mu.Lock()
		t.next = t.next.Add(sanitize(t.interval()))
		if now := l.now(); t.next.Before(now) {
			t.next = now.Add(sanitize(t.interval()))
		}
		l.mu.Unlock()
	}
}

// safely runs fn, logging a panic instead of tearing down every pipeline.
func (l *Loop) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("loop: callback panicked: %v", r)
		}
	}()
	fn()
}

func sanitize(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
