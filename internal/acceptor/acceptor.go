// Package acceptor owns a listening TCP socket and hands every accepted
// connection to a handler running in its own goroutine. The master runs one
// Listener for slave registrations and one for client requests.
package acceptor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultBackoff is the pause after a transient accept error.
const DefaultBackoff = 100 * time.Millisecond

// ErrNilHandler is returned by Start when no connection handler is given.
var ErrNilHandler = errors.New("accept handler cannot be nil")

// Handler serves one accepted connection. It owns the connection.
type Handler func(conn net.Conn)

// Option configures a Listener.
type Option func(*Listener)

// WithBackoff sets the pause after a transient accept error.
func WithBackoff(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.backoff = d
		}
	}
}

// Listener accepts connections on one address.
type Listener struct {
	name    string
	log     *zap.Logger
	backoff time.Duration

	mu     sync.Mutex
	ln     net.Listener
	cancel context.CancelFunc
	done   chan struct{}

	handlers sync.WaitGroup
}

// New creates a stopped listener. name identifies the role in logs.
func New(name string, log *zap.Logger, opts ...Option) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Listener{
		name:    name,
		log:     log.Named("acceptor").With(zap.String("listener", name)),
		backoff: DefaultBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start binds address and runs the accept loop in the background until ctx is
// cancelled or Stop is called. Starting a listener that is already listening
// only logs.
func (l *Listener) Start(ctx context.Context, address string, onAccept Handler) error {
	if onAccept == nil {
		return ErrNilHandler
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ln != nil {
		l.log.Info("Listener already started", zap.String("address", l.ln.Addr().String()))
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	l.run(ctx, ln, onAccept)
	return nil
}

// run starts the accept loop on ln. l.mu must be held.
func (l *Listener) run(ctx context.Context, ln net.Listener, onAccept Handler) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.ln, l.cancel, l.done = ln, cancel, done

	// Accept does not observe ctx; closing the listener unblocks it.
	stopClose := context.AfterFunc(loopCtx, func() { _ = ln.Close() })

	go l.acceptLoop(loopCtx, ln, onAccept, done, stopClose)

	l.log.Info("Listener started", zap.String("address", ln.Addr().String()))
}

func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener, onAccept Handler, done chan struct{}, stopClose func() bool) {
	defer close(done)
	defer stopClose()
	defer l.release(ln)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.log.Info("Accept loop cancelled")
				return
			}
			if errors.Is(err, net.ErrClosed) {
				l.log.Info("Listener closed during accept")
				return
			}

			l.log.Warn("Accept failed", zap.Error(err))
			select {
			case <-ctx.Done():
				l.log.Info("Accept loop cancelled")
				return
			case <-time.After(l.backoff):
			}
			continue
		}

		l.log.Info("Connection accepted", zap.String("remote", conn.RemoteAddr().String()))
		l.handlers.Add(1)
		go l.serve(conn, onAccept)
	}
}

// serve runs one handler and keeps a handler panic from taking the process down.
func (l *Listener) serve(conn net.Conn, onAccept Handler) {
	defer l.handlers.Done()
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("Connection handler panic recovered",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			_ = conn.Close()
		}
	}()
	onAccept(conn)
}

// release forgets ln if it is still the active listener.
func (l *Listener) release(ln net.Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == ln {
		l.ln = nil
		l.cancel()
	}
}

// Stop terminates the accept loop and releases the address. It does not wait
// for running handlers; see Wait. Stop is idempotent.
func (l *Listener) Stop() {
	l.mu.Lock()
	ln, cancel, done := l.ln, l.cancel, l.done
	l.ln = nil
	l.mu.Unlock()

	if ln == nil {
		return
	}

	cancel()
	_ = ln.Close()
	<-done
	l.log.Info("Listener stopped")
}

// Wait blocks until every handler started by this listener has returned.
func (l *Listener) Wait() {
	l.handlers.Wait()
}

// IsListening reports whether the accept loop is running.
func (l *Listener) IsListening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ln != nil
}

// Addr returns the bound address, or nil when not listening.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}
