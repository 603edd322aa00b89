// Package trigger decides when a message view needs a new trust evaluation.
//
// Document-change notifications are debounced; when the debounce timer
// expires the trigger fires at most once per sender identity shown in the
// view. A Trigger belongs to exactly one view.
package trigger

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
)

// DefaultDelay coalesces bursts of document changes into one evaluation.
const DefaultDelay = 500 * time.Millisecond

// State is the trigger's position in its lifecycle.
type State int

const (
	Idle State = iota
	DebouncePending
	Scanning
	Scanned
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case DebouncePending:
		return "debounce_pending"
	case Scanning:
		return "scanning"
	case Scanned:
		return "scanned"
	default:
		return "unknown"
	}
}

// SenderSource reads the sender identity currently displayed by a view.
// ok is false when no sender can be located.
type SenderSource interface {
	SenderIdentity() (identity string, ok bool)
}

// SenderFunc adapts a function to SenderSource.
type SenderFunc func() (string, bool)

func (f SenderFunc) SenderIdentity() (string, bool) { return f() }

// FireFunc starts one pipeline run.
type FireFunc func(run model.Run)

// Timer is the cancellable handle returned by an AfterFunc.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through the
// default option.
type AfterFunc func(d time.Duration, f func()) Timer

// Option configures a Trigger.
type Option func(*Trigger)

// WithDelay sets the debounce delay.
func WithDelay(d time.Duration) Option {
	return func(t *Trigger) {
		if d > 0 {
			t.delay = d
		}
	}
}

// WithAfterFunc replaces the timer factory.
func WithAfterFunc(after AfterFunc) Option {
	return func(t *Trigger) {
		if after != nil {
			t.after = after
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(t *Trigger) {
		if l != nil {
			t.logger = l
		}
	}
}

// Trigger is the per-view scan trigger state machine.
type Trigger struct {
	view   SenderSource
	fire   FireFunc
	delay  time.Duration
	after  AfterFunc
	logger logging.Logger

	mu         sync.Mutex
	state      State
	lastSender string
	scanned    bool
	pending    Timer
	gen        uint64
	stopped    bool
}

// New builds a Trigger for one view.
func New(view SenderSource, fire FireFunc, opts ...Option) *Trigger {
	t := &Trigger{
		view:  view,
		fire:  fire,
		delay: DefaultDelay,
		after: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		logger: logging.NopLogger{},
	}
	for _, o := range opts {
		o(t)
	}
	t.logger = t.logger.With(logging.Field{Key: "component", Value: "trigger"})
	return t
}

// Notify records a document change. Any pending timer is cancelled and a new
// one started.
func (t *Trigger) Notify() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if t.pending != nil {
		t.pending.Stop()
	}
	t.gen++
	gen := t.gen
	t.pending = t.after(t.delay, func() { t.expire(gen) })
	if t.state != Scanning {
		t.state = DebouncePending
	}
}

// State reports the current lifecycle state.
func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// LastSender returns the sender identity of the last fired run.
func (t *Trigger) LastSender() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSender
}

// Stop cancels the pending timer. No run fires after Stop returns.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.gen++
}

func (t *Trigger) expire(gen uint64) {
	sender, found := t.view.SenderIdentity()

	t.mu.Lock()
	if t.stopped || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.pending = nil

	if found && sender != t.lastSender {
		t.scanned = false
	}
	if t.scanned {
		if t.state == DebouncePending {
			t.state = Scanned
		}
		t.mu.Unlock()
		return
	}

	t.scanned = true
	if found {
		t.lastSender = sender
	}
	t.state = Scanning
	run := model.Run{ID: uuid.NewString(), SenderIdentity: sender, SenderFound: found}
	t.mu.Unlock()

	t.logger.Debug("scan triggered",
		logging.Field{Key: "run_id", Value: run.ID},
		logging.Field{Key: "sender", Value: run.SenderIdentity},
		logging.Field{Key: "sender_found", Value: run.SenderFound})
	t.fire(run)

	t.mu.Lock()
	if t.state == Scanning {
		t.state = Scanned
		if t.pending != nil {
			t.state = DebouncePending
		}
	}
	t.mu.Unlock()
}
