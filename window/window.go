// Package window models a page's message channel: any context holding the
// window can post to it, every listener sees messages in post order, and each
// message carries the identity of the context that sent it.
//
// Delivery runs on a single event-loop goroutine so listeners never run
// concurrently with each other, as on a browser main thread.
package window

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmcleod/ironwallet/internal/uuid"
)

// Source identifies the context that posted a message.
type Source string

// Message is one delivered post.
type Message struct {
	Source Source
	Data   any
}

// Listener receives messages on the event loop.
type Listener func(Message)

type listenerEntry struct {
	id int
	fn Listener
}

// Window is an in-process page message channel.
type Window struct {
	self   Source
	logger *slog.Logger

	mu        sync.Mutex
	listeners []listenerEntry
	nextID    int
	queue     []func()
	wake      chan struct{}
	closed    bool
	done      chan struct{}
}

// Option configures a Window.
type Option func(*Window)

// WithLogger sets the logger used for listener panics.
func WithLogger(l *slog.Logger) Option {
	return func(w *Window) {
		w.logger = l
	}
}

// New creates a Window and starts its event loop. Call Close to stop it.
func New(opts ...Option) *Window {
	w := &Window{
		self:   Source("window-" + uuid.New()),
		logger: slog.Default(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "window")
	go w.loop()
	return w
}

// Self is the source identity of scripts running in this window.
func (w *Window) Self() Source {
	return w.self
}

// Frame returns a fresh source identity for a nested frame. Messages posted
// with it reach the same listeners but are distinguishable from Self.
func (w *Window) Frame() Source {
	return Source("frame-" + uuid.New())
}

// PostMessage queues data for delivery to every listener. It never blocks.
// Posting to a closed window is a no-op.
func (w *Window) PostMessage(source Source, data any) {
	msg := Message{Source: source, Data: data}
	w.enqueue(func() { w.dispatch(msg) })
}

// AddListener registers fn and returns a function that removes it.
func (w *Window) AddListener(fn Listener) (remove func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	w.listeners = append(w.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, l := range w.listeners {
			if l.id == id {
				w.listeners = append(w.listeners[:i:i], w.listeners[i+1:]...)
				return
			}
		}
	}
}

// Do runs fn on the event loop after everything already queued.
func (w *Window) Do(fn func()) {
	w.enqueue(fn)
}

// Flush waits until every message posted before the call has been delivered.
func (w *Window) Flush(ctx context.Context) error {
	reached := make(chan struct{})
	if !w.enqueue(func() { close(reached) }) {
		return fmt.Errorf("window closed")
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the event loop. Queued messages that have not been delivered are dropped.
func (w *Window) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.queue = nil
	w.mu.Unlock()
	close(w.done)
}

func (w *Window) enqueue(task func()) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, task)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

func (w *Window) loop() {
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}
		for {
			w.mu.Lock()
			if w.closed || len(w.queue) == 0 {
				w.mu.Unlock()
				break
			}
			task := w.queue[0]
			w.queue[0] = nil
			w.queue = w.queue[1:]
			w.mu.Unlock()
			w.run(task)
		}
	}
}

func (w *Window) dispatch(msg Message) {
	w.mu.Lock()
	listeners := make([]listenerEntry, len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	for _, l := range listeners {
		w.run(func() { l.fn(msg) })
	}
}

// run executes one task. A panicking listener is logged and does not stop
// delivery to the others.
func (w *Window) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("listener panicked", "panic", r)
		}
	}()
	task()
}
