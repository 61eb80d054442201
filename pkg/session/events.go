package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

// EventType identifies a lifecycle transition.
type EventType string

const (
	EventStart            EventType = "start"
	EventUpdate           EventType = "update"
	EventExpire           EventType = "expire"
	EventDestroy          EventType = "destroy"
	EventValidationFailed EventType = "validation_failed"
)

// Event describes a lifecycle transition. Session is a copy of the record
// at the time of the event and may be nil for validation failures.
type Event struct {
	ID         uuid.UUID
	Type       EventType
	SessionID  string
	Session    *Session
	Reason     Reason
	OccurredAt time.Time
}

// Listener receives events synchronously on the emitting goroutine.
type Listener func(ctx context.Context, e Event)

type registration struct {
	id       uint64
	listener Listener
	types    []EventType
}

func (r registration) accepts(t EventType) bool {
	return len(r.types) == 0 || slices.Contains(r.types, t)
}

// Emitter fans events out to registered listeners in registration order.
// A panicking listener is logged and does not affect the others.
type Emitter struct {
	mu            sync.RWMutex
	registrations []registration
	nextID        uint64
	logger        *slog.Logger
	now           func() time.Time
}

// NewEmitter creates an emitter. A nil logger discards diagnostics.
func NewEmitter(l *slog.Logger) *Emitter {
	if l == nil {
		l = logger.Nop()
	}
	return &Emitter{logger: l, now: time.Now}
}

// Subscription removes a single listener registration.
type Subscription struct {
	emitter *Emitter
	id      uint64
	once    sync.Once
}

// Unsubscribe removes exactly this registration. Repeated calls are no-ops.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.emitter.remove(s.id)
	})
}

// Subscribe registers fn for the given event types, or for every type when none are given.
func (e *Emitter) Subscribe(fn Listener, types ...EventType) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.registrations = append(e.registrations, registration{
		id:       e.nextID,
		listener: fn,
		types:    slices.Clone(types),
	})
	return &Subscription{emitter: e, id: e.nextID}
}

func (e *Emitter) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registrations = slices.DeleteFunc(e.registrations, func(r registration) bool {
		return r.id == id
	})
}

// Len returns the number of active registrations.
func (e *Emitter) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.registrations)
}

// Emit delivers ev to every matching listener before returning.
// A zero ID or OccurredAt is filled in.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now()
	}

	e.mu.RLock()
	regs := slices.Clone(e.registrations)
	e.mu.RUnlock()

	for _, r := range regs {
		if r.accepts(ev.Type) {
			e.deliver(ctx, r.listener, ev)
		}
	}
}

func (e *Emitter) deliver(ctx context.Context, fn Listener, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.ErrorContext(ctx, "session event listener panicked",
				logger.Event(string(ev.Type)),
				logger.SessionID(ev.SessionID),
				logger.Error(fmt.Errorf("panic: %v", rec)),
			)
		}
	}()
	// Listeners get their own copy so one cannot mutate what the next sees.
	ev.Session = ev.Session.Clone()
	fn(ctx, ev)
}
