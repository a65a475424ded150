package carts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartrecovery/pkg/enums"
	"github.com/angelmondragon/cartrecovery/pkg/logger"
)

// ErrListenerQueueFull is returned by AsyncListener when its buffer is saturated.
var ErrListenerQueueFull = errors.New("listener queue full")

// ErrListenerClosed is returned by AsyncListener after Close.
var ErrListenerClosed = errors.New("listener closed")

// Event is the outbound notification describing a session lifecycle change.
type Event struct {
	ID         uuid.UUID
	Type       enums.CartEventType
	Session    CartSession
	From       enums.CartSessionState
	OccurredAt time.Time
}

var eventNamespace = uuid.MustParse("6d3c8f8e-4f5b-4c0e-9a59-3f2f0b8f2a71")

// NewEventID derives a stable id so redelivered events can be deduplicated.
func NewEventID(sessionID uuid.UUID, eventType enums.CartEventType, at time.Time) uuid.UUID {
	return uuid.NewSHA1(eventNamespace, []byte(fmt.Sprintf("%s:%s:%d", sessionID, eventType, at.UnixNano())))
}

// EventForTransition maps a state change onto its outbound event type.
func EventForTransition(t Transition) Event {
	var eventType enums.CartEventType
	switch t.To {
	case enums.CartSessionStateAbandoned:
		eventType = enums.CartEventAbandoned
	case enums.CartSessionStateRecovered:
		eventType = enums.CartEventRecovered
	case enums.CartSessionStateExpired:
		eventType = enums.CartEventExpired
	case enums.CartSessionStateActive:
		eventType = enums.CartEventReactivated
	}
	return Event{
		ID:         NewEventID(t.SessionID, eventType, t.At),
		Type:       eventType,
		Session:    t.Session.Clone(),
		From:       t.From,
		OccurredAt: t.At,
	}
}

// Emitter accepts events without reporting delivery failures to the caller.
type Emitter interface {
	Emit(ctx context.Context, evt Event)
}

// Listener handles one event. Returned errors are logged by the dispatcher.
type Listener interface {
	Name() string
	Handle(ctx context.Context, evt Event) error
}

// Callbacks adapts per-type functions into a Listener. Nil callbacks are skipped.
type Callbacks struct {
	ListenerName  string
	OnTracked     func(ctx context.Context, s CartSession) error
	OnAbandoned   func(ctx context.Context, s CartSession) error
	OnRecovered   func(ctx context.Context, s CartSession) error
	OnExpired     func(ctx context.Context, s CartSession) error
	OnReactivated func(ctx context.Context, s CartSession) error
}

func (c Callbacks) Name() string {
	if c.ListenerName == "" {
		return "callbacks"
	}
	return c.ListenerName
}

func (c Callbacks) Handle(ctx context.Context, evt Event) error {
	var fn func(context.Context, CartSession) error
	switch evt.Type {
	case enums.CartEventTracked:
		fn = c.OnTracked
	case enums.CartEventAbandoned:
		fn = c.OnAbandoned
	case enums.CartEventRecovered:
		fn = c.OnRecovered
	case enums.CartEventExpired:
		fn = c.OnExpired
	case enums.CartEventReactivated:
		fn = c.OnReactivated
	}
	if fn == nil {
		return nil
	}
	return fn(ctx, evt.Session)
}

// Dispatcher fans events out to listeners synchronously, isolating the
// caller from listener errors and panics.
type Dispatcher struct {
	logg      *logger.Logger
	mu        sync.RWMutex
	listeners []Listener
}

func NewDispatcher(logg *logger.Logger, listeners ...Listener) *Dispatcher {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Dispatcher{logg: logg, listeners: listeners}
}

func (d *Dispatcher) Register(l Listener) {
	if l == nil {
		return
	}
	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()
}

func (d *Dispatcher) Emit(ctx context.Context, evt Event) {
	d.mu.RLock()
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.RUnlock()

	for _, l := range listeners {
		if err := d.deliver(ctx, l, evt); err != nil {
			logCtx := d.logg.WithFields(ctx, map[string]any{
				"listener":   l.Name(),
				"event_type": evt.Type.String(),
				"event_id":   evt.ID.String(),
			})
			logCtx = d.logg.WithSessionID(logCtx, evt.Session.ID.String())
			d.logg.Error(logCtx, "cart event listener failed", err)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, l Listener, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.Handle(ctx, evt)
}

type queuedEvent struct {
	ctx context.Context
	evt Event
}

// AsyncListener moves a slow listener off the request path through a bounded
// queue drained by one worker goroutine.
type AsyncListener struct {
	inner  Listener
	logg   *logger.Logger
	queue  chan queuedEvent
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncListener(inner Listener, buffer int, logg *logger.Logger) *AsyncListener {
	if buffer <= 0 {
		buffer = 1
	}
	if logg == nil {
		logg = logger.Nop()
	}
	a := &AsyncListener{
		inner: inner,
		logg:  logg,
		queue: make(chan queuedEvent, buffer),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncListener) Name() string {
	return "async:" + a.inner.Name()
}

func (a *AsyncListener) Handle(ctx context.Context, evt Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrListenerClosed
	}
	select {
	case a.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), evt: evt}:
		return nil
	default:
		return ErrListenerQueueFull
	}
}

// Close stops intake and waits for queued events to drain or ctx to end.
func (a *AsyncListener) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncListener) run() {
	defer close(a.done)
	for item := range a.queue {
		if err := a.handle(item); err != nil {
			logCtx := a.logg.WithFields(item.ctx, map[string]any{
				"listener":   a.inner.Name(),
				"event_type": item.evt.Type.String(),
				"event_id":   item.evt.ID.String(),
			})
			a.logg.Error(logCtx, "async cart event listener failed", err)
		}
	}
}

func (a *AsyncListener) handle(item queuedEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return a.inner.Handle(item.ctx, item.evt)
}
