package keys

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Capability is the signing module as seen by the wallet core. Secret key
// material only crosses it as a Keypair the caller destroys.
type Capability interface {
	Derive(seed []byte, index uint32) (*Keypair, error)
	FromSecretKey(encoded string) (*Keypair, error)
	ValidateAddress(address string) bool
	Verify(networkID, address string, msg, sig []byte) bool
}

// Module is the in-process Capability.
type Module struct{}

var _ Capability = Module{}

func (Module) Derive(seed []byte, index uint32) (*Keypair, error) { return Derive(seed, index) }

func (Module) FromSecretKey(encoded string) (*Keypair, error) { return FromSecretKey(encoded) }

func (Module) ValidateAddress(address string) bool { return ValidateAddress(address) }

func (Module) Verify(networkID, address string, msg, sig []byte) bool {
	return Verify(networkID, address, msg, sig)
}

// LoadModule initializes the in-process module. It runs a sign/verify
// round trip so a broken build fails here rather than on a user's first
// signature.
func LoadModule(ctx context.Context) (Capability, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kp, err := Derive(bytes.Repeat([]byte{0x42}, 32), 0)
	if err != nil {
		return nil, fmt.Errorf("keys self-test: %w", err)
	}
	defer kp.Destroy()

	msg := []byte("self-test")
	if !Verify("self-test", kp.Address(), msg, kp.Sign("self-test", msg)) {
		return nil, fmt.Errorf("keys self-test: signature did not verify")
	}
	return Module{}, nil
}

// InitFunc loads a Capability.
type InitFunc func(ctx context.Context) (Capability, error)

// Lazy is a one-shot, lazily initialized Capability. Concurrent callers of
// Ensure share one initialization; a failed initialization is retried on the
// next call instead of being cached.
type Lazy struct {
	init  InitFunc
	group singleflight.Group

	mu    sync.RWMutex
	ready Capability
}

// NewLazy returns a Lazy that loads its Capability with init.
func NewLazy(init InitFunc) *Lazy {
	return &Lazy{init: init}
}

// Ensure returns the Capability, initializing it if needed. Cancelling ctx
// abandons the wait but lets an in-flight initialization finish for later callers.
func (l *Lazy) Ensure(ctx context.Context) (Capability, error) {
	if c := l.loaded(); c != nil {
		return c, nil
	}

	ch := l.group.DoChan("init", func() (any, error) {
		if c := l.loaded(); c != nil {
			return c, nil
		}
		c, err := l.init(context.WithoutCancel(ctx))
		if err != nil {
			return nil, fmt.Errorf("initializing key capability: %w", err)
		}
		l.mu.Lock()
		l.ready = c
		l.mu.Unlock()
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Capability), nil
	}
}

// Ready reports whether the Capability has been initialized.
func (l *Lazy) Ready() bool {
	return l.loaded() != nil
}

func (l *Lazy) loaded() Capability {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}
