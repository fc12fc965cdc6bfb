// Package relay bridges a page's message channel and the wallet core. It
// forwards REQUEST envelopes posted by the page, stamps them with the origin
// taken from trusted sender metadata, and posts exactly one RESPONSE back
// for each request.
//
// A Relay reads nothing from payloads beyond the envelope type and holds no
// state between requests.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmcleod/ironwallet/protocol"
	"github.com/jmcleod/ironwallet/window"
)

// Backend delivers an external request to the wallet core and returns its
// reply as sent. An error means the core could not be reached.
type Backend interface {
	Send(ctx context.Context, req protocol.ExternalRequest) (json.RawMessage, error)
}

// Sender is what the host knows about the page, independent of anything the
// page says about itself.
type Sender struct {
	URL string
}

// Relay forwards one page's requests to a Backend.
type Relay struct {
	win     *window.Window
	backend Backend
	origin  string
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	remove func()
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = l
	}
}

// New creates a Relay for the page described by sender.
func New(win *window.Window, backend Backend, sender Sender, opts ...Option) (*Relay, error) {
	origin, err := protocol.OriginFromURL(sender.URL)
	if err != nil {
		return nil, fmt.Errorf("relay sender: %w", err)
	}
	r := &Relay{
		win:     win,
		backend: backend,
		origin:  origin,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "relay", "origin", origin)
	return r, nil
}

// Origin is the origin stamped on forwarded requests.
func (r *Relay) Origin() string {
	return r.origin
}

// Start runs inject so the page API exists before any page script can look
// for it, starts listening, and then announces READY.
func (r *Relay) Start(ctx context.Context, inject func(*window.Window)) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	if inject != nil {
		inject(r.win)
	}
	r.remove = r.win.AddListener(r.onMessage)
	r.win.PostMessage(r.win.Self(), protocol.Ready())
}

// Stop detaches from the page and waits for in-flight requests to finish.
func (r *Relay) Stop() {
	if r.remove != nil {
		r.remove()
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Relay) onMessage(msg window.Message) {
	if msg.Source != r.win.Self() {
		return
	}
	env, ok := msg.Data.(protocol.Envelope)
	if !ok || env.Type != protocol.TypeRequest {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.win.PostMessage(r.win.Self(), r.forward(env))
	}()
}

func (r *Relay) forward(env protocol.Envelope) protocol.Envelope {
	resp := protocol.Envelope{Type: protocol.TypeResponse, ID: env.ID}

	params, err := protocol.ParamsFromEnvelope(env.Params)
	if err != nil {
		resp.Error = "invalid params: " + err.Error()
		return resp
	}
	req := protocol.ExternalRequest{Action: env.Method, Params: params, Origin: r.origin}

	result, err := r.backend.Send(r.ctx, req)
	if err != nil {
		r.logger.Warn("forwarding request failed", "id", env.ID, "method", env.Method, "error", err)
		if msg, ok := protocol.IsRemote(err); ok {
			resp.Error = msg
		} else {
			resp.Error = protocol.ErrMsgUnavailable
		}
		return resp
	}
	resp.Result = result
	return resp
}
