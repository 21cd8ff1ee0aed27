// Package notify implements the application-wide transient notification
// surface: one live notification at a time, dismissed by a single timer.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"farmacia/client/internal/lifecycle"
	"farmacia/client/internal/logging"
)

const component = "notify"

// DefaultDuration is used when no positive duration is given.
const DefaultDuration = 5000 * time.Millisecond

// Kind is the closed set of notification styles.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
)

// Valid reports whether k belongs to the closed set.
func (k Kind) Valid() bool {
	switch k {
	case KindSuccess, KindError, KindWarning:
		return true
	}
	return false
}

// Notification is the value published to subscribers on every change.
type Notification struct {
	Kind     Kind
	Message  string
	Visible  bool
	Duration time.Duration
	// Seq increases with every published change.
	Seq uint64
}

// Timer is the part of *time.Timer the broadcaster needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through an adapter.
type AfterFunc func(d time.Duration, f func()) Timer

// Options configures a Broadcaster.
type Options struct {
	DefaultDuration time.Duration
	AfterFunc       AfterFunc
	Logger          *logging.Logger
}

// Broadcaster owns the single live notification. Create one at application
// start and pass it through the context to every screen.
type Broadcaster struct {
	mu        sync.Mutex
	deliverMu sync.Mutex
	current   Notification
	timer     Timer
	gen       uint64
	seq       uint64
	closed    bool
	subs      map[int]func(Notification)
	nextSub   int
	after     AfterFunc
	fallback  time.Duration
	logger    *logging.Logger
}

// New creates a broadcaster with a hidden initial notification.
func New(opts Options) *Broadcaster {
	after := opts.AfterFunc
	if after == nil {
		after = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	fallback := opts.DefaultDuration
	if fallback <= 0 {
		fallback = DefaultDuration
	}
	return &Broadcaster{
		current:  Notification{Kind: KindSuccess, Duration: fallback},
		subs:     make(map[int]func(Notification)),
		after:    after,
		fallback: fallback,
		logger:   opts.Logger,
	}
}

// Show replaces whatever is displayed with a visible notification using the
// default duration.
func (b *Broadcaster) Show(kind Kind, message string) error {
	return b.ShowFor(kind, message, 0)
}

// ShowFor replaces whatever is displayed and restarts the dismissal timer.
// A non-positive duration falls back to the default.
func (b *Broadcaster) ShowFor(kind Kind, message string, duration time.Duration) error {
	if !kind.Valid() {
		return fmt.Errorf("notify: unknown kind %q", kind)
	}
	if duration <= 0 {
		duration = b.fallback
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return lifecycle.Closed(component)
	}
	b.stopTimerLocked()
	b.gen++
	gen := b.gen
	b.current = Notification{Kind: kind, Message: message, Visible: true, Duration: duration}
	b.timer = b.after(duration, func() { b.expire(gen) })
	b.logger.Debugf("notification %s shown for %s: %s", kind, duration, message)
	b.publishLocked()
	return nil
}

// Hide dismisses the notification immediately and cancels the pending timer.
func (b *Broadcaster) Hide() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return lifecycle.Closed(component)
	}
	b.stopTimerLocked()
	b.gen++
	b.current.Visible = false
	b.publishLocked()
	return nil
}

// Current returns a snapshot of the live notification.
func (b *Broadcaster) Current() Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Subscribe registers fn for every change. fn runs on the goroutine that
// caused the change and must not call back into the broadcaster synchronously.
func (b *Broadcaster) Subscribe(fn func(Notification)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Close ends the broadcaster's lifetime. Pending timers are cancelled.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.stopTimerLocked()
	b.closed = true
	b.subs = make(map[int]func(Notification))
}

func (b *Broadcaster) expire(gen uint64) {
	b.mu.Lock()
	if b.closed || gen != b.gen {
		// superseded by a later Show or Hide
		b.mu.Unlock()
		return
	}
	b.timer = nil
	b.current.Visible = false
	b.publishLocked()
}

func (b *Broadcaster) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// publishLocked releases b.mu. Delivery is serialized by deliverMu so
// subscribers observe changes in order.
func (b *Broadcaster) publishLocked() {
	b.seq++
	snap := b.current
	snap.Seq = b.seq
	subs := make([]func(Notification), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.deliverMu.Lock()
	b.mu.Unlock()
	defer b.deliverMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

type broadcasterKey struct{}

// WithContext installs b as the broadcaster for everything derived from ctx.
func WithContext(ctx context.Context, b *Broadcaster) context.Context {
	return context.WithValue(ctx, broadcasterKey{}, b)
}

// FromContext returns the active broadcaster or a *lifecycle.ConfigurationError.
func FromContext(ctx context.Context) (*Broadcaster, error) {
	if ctx == nil {
		return nil, lifecycle.NotActive(component)
	}
	b, ok := ctx.Value(broadcasterKey{}).(*Broadcaster)
	if !ok || b == nil {
		return nil, lifecycle.NotActive(component)
	}
	return b, nil
}

// Show displays a notification through the broadcaster carried by ctx.
func Show(ctx context.Context, kind Kind, message string) error {
	b, err := FromContext(ctx)
	if err != nil {
		return err
	}
	return b.Show(kind, message)
}

// ShowFor is Show with an explicit duration.
func ShowFor(ctx context.Context, kind Kind, message string, duration time.Duration) error {
	b, err := FromContext(ctx)
	if err != nil {
		return err
	}
	return b.ShowFor(kind, message, duration)
}

// Hide dismisses the notification of the broadcaster carried by ctx.
func Hide(ctx context.Context) error {
	b, err := FromContext(ctx)
	if err != nil {
		return err
	}
	return b.Hide()
}
