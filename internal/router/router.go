package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/siohaza/warden/internal/event"
	"github.com/siohaza/warden/internal/failure"
)

type Handler interface {
	Name() string
	Handle(ctx context.Context, ev event.GameEvent) error
}

type funcHandler struct {
	name string
	fn   func(ctx context.Context, ev event.GameEvent) error
}

func (f *funcHandler) Name() string { return f.name }

func (f *funcHandler) Handle(ctx context.Context, ev event.GameEvent) error {
	return f.fn(ctx, ev)
}

func Func(name string, fn func(ctx context.Context, ev event.GameEvent) error) Handler {
	return &funcHandler{name: name, fn: fn}
}

// Outcome is the result of one handler invocation for one event.
type Outcome struct {
	Handler  string
	Err      error
	Kind     failure.Kind
	Duration time.Duration
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

func (o Outcome) Status() string {
	if o.Err == nil {
		return "completed"
	}
	return o.Kind.String()
}

type Observer interface {
	ObserveEvent(t event.Type)
	ObserveOutcome(t event.Type, o Outcome)
}

type Builder struct {
	handlers map[event.Type][]Handler
	logger   *slog.Logger
	observer Observer
}

func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		handlers: make(map[event.Type][]Handler),
		logger:   logger,
	}
}

func (b *Builder) WithObserver(o Observer) *Builder {
	b.observer = o
	return b
}

// Register appends h to the handlers of every given event type. Handlers for a
// type run in registration order.
func (b *Builder) Register(h Handler, types ...event.Type) *Builder {
	for _, t := range types {
		b.handlers[t] = append(b.handlers[t], h)
	}
	return b
}

func (b *Builder) Build() *Router {
	handlers := make(map[event.Type][]Handler, len(b.handlers))
	for t, hs := range b.handlers {
		handlers[t] = append([]Handler(nil), hs...)
	}
	return &Router{
		handlers: handlers,
		logger:   b.logger,
		observer: b.observer,
	}
}

// Router dispatches events to the handlers registered for their type. It is
// immutable once built and must be driven by a single goroutine so handlers
// observe events strictly in arrival order.
type Router struct {
	handlers map[event.Type][]Handler
	logger   *slog.Logger
	observer Observer
}

func (r *Router) Handlers(t event.Type) []Handler {
	return r.handlers[t]
}

func (r *Router) Types() []event.Type {
	types := make([]event.Type, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Dispatch runs every handler registered for ev.Type and returns once all of
// them have completed. A failing handler never prevents the remaining ones
// from running.
func (r *Router) Dispatch(ctx context.Context, ev event.GameEvent) []Outcome {
	handlers := r.handlers[ev.Type]

	if r.observer != nil {
		r.observer.ObserveEvent(ev.Type)
	}

	if len(handlers) == 0 {
		return nil
	}

	outcomes := make([]Outcome, 0, len(handlers))
	for _, h := range handlers {
		o := r.invoke(ctx, h, ev)
		if o.Failed() {
			r.logger.Error("handler failed",
				"handler", o.Handler,
				"kind", o.Kind.String(),
				"event", string(ev.Type),
				"player", ev.Player,
				"line", ev.Describe(),
				"error", o.Err,
			)
		}
		if r.observer != nil {
			r.observer.ObserveOutcome(ev.Type, o)
		}
		outcomes = append(outcomes, o)
	}

	return outcomes
}

func (r *Router) invoke(ctx context.Context, h Handler, ev event.GameEvent) (o Outcome) {
	o.Handler = h.Name()
	start := time.Now()

	defer func() {
		o.Duration = time.Since(start)
		if rec := recover(); rec != nil {
			o.Err = fmt.Errorf("handler panicked: %v", rec)
			o.Kind = failure.KindUnknown
		}
	}()

	if err := h.Handle(ctx, ev); err != nil {
		o.Err = err
		o.Kind = failure.KindOf(err)
	}

	return o
}
