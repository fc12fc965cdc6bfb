package provider

import (
	"log/slog"
	"sync"
)

// Event names emitted by the Provider.
const (
	EventReady           = "ready"
	EventConnect         = "connect"
	EventAccountsChanged = "accountsChanged"
)

// Handler receives an event's payload.
type Handler func(payload any)

type handlerEntry struct {
	id int
	fn Handler
}

// Emitter is an observer list keyed by event name. A panicking handler is
// logged and neither stops the remaining handlers nor reaches Emit's caller.
type Emitter struct {
	logger *slog.Logger

	mu       sync.Mutex
	nextID   int
	handlers map[string][]handlerEntry
}

// NewEmitter returns an Emitter that logs handler panics to logger.
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{logger: logger, handlers: make(map[string][]handlerEntry)}
}

// On registers fn for event and returns a function that unregisters it.
func (e *Emitter) On(event string, fn Handler) (off func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.handlers[event] = append(e.handlers[event], handlerEntry{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		hs := e.handlers[event]
		for i, h := range hs {
			if h.id == id {
				e.handlers[event] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every handler registered for event, in registration order.
func (e *Emitter) Emit(event string, payload any) {
	e.mu.Lock()
	hs := make([]handlerEntry, len(e.handlers[event]))
	copy(hs, e.handlers[event])
	e.mu.Unlock()

	for _, h := range hs {
		e.call(event, h.fn, payload)
	}
}

func (e *Emitter) call(event string, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked", "event", event, "panic", r)
		}
	}()
	fn(payload)
}
