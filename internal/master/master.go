// Package master implements the coordinating node: it accepts slaves and
// clients, splits each job into per-document tasks, runs them on the slaves
// and returns the aggregated keyword matrix.
package master

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"yqhp/freq-engine/internal/acceptor"
)

// Config holds master node configuration.
type Config struct {
	// ClientAddress is where clients submit jobs.
	ClientAddress string

	// SlaveAddress is where slaves connect.
	SlaveAddress string

	// TaskTimeout bounds one task round trip.
	TaskTimeout time.Duration

	// LivenessInterval is how often each slave connection is polled.
	LivenessInterval time.Duration

	// AcceptBackoff is the pause after a transient accept error.
	AcceptBackoff time.Duration
}

// DefaultConfig returns a default master configuration.
func DefaultConfig() *Config {
	return &Config{
		ClientAddress:    ":5000",
		SlaveAddress:     ":5001",
		TaskTimeout:      10 * time.Second,
		LivenessInterval: time.Second,
		AcceptBackoff:    acceptor.DefaultBackoff,
	}
}

// MasterState represents the state of the master node.
type MasterState string

const (
	// MasterStateStarting indicates the master is starting.
	MasterStateStarting MasterState = "starting"
	// MasterStateRunning indicates the master is running.
	MasterStateRunning MasterState = "running"
	// MasterStateStopping indicates the master is stopping.
	MasterStateStopping MasterState = "stopping"
	// MasterStateStopped indicates the master is stopped.
	MasterStateStopped MasterState = "stopped"
)

// Master wires the two endpoints to the registry and the distributor.
type Master struct {
	config *Config
	log    *zap.Logger

	registry    *SlaveRegistry
	distributor *Distributor
	handler     *ClientHandler
	stats       *Stats

	clients *acceptor.Listener
	slaves  *acceptor.Listener

	// State management
	state   atomic.Value // MasterState
	started atomic.Bool
	cancel  context.CancelFunc
	mu      sync.Mutex
}

// NewMaster creates a stopped master.
func NewMaster(config *Config, log *zap.Logger) *Master {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("master")

	stats := NewStats()
	registry := NewSlaveRegistry(RegistryOptions{
		TaskTimeout:      config.TaskTimeout,
		LivenessInterval: config.LivenessInterval,
	}, log)
	distributor := NewDistributor(registry, log, stats)

	m := &Master{
		config:      config,
		log:         log,
		registry:    registry,
		distributor: distributor,
		handler:     NewClientHandler(distributor, log, stats),
		stats:       stats,
		clients:     acceptor.New("client", log, acceptor.WithBackoff(config.AcceptBackoff)),
		slaves:      acceptor.New("slave", log, acceptor.WithBackoff(config.AcceptBackoff)),
	}
	m.state.Store(MasterStateStopped)
	return m
}

// Start binds both endpoints. The master runs until ctx is cancelled or Stop
// is called.
func (m *Master) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return fmt.Errorf("master already started")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Store(MasterStateStarting)
	runCtx, cancel := context.WithCancel(ctx)

	err := m.slaves.Start(runCtx, m.config.SlaveAddress, func(conn net.Conn) {
		m.registry.Register(runCtx, conn)
	})
	if err != nil {
		cancel()
		m.reset()
		return fmt.Errorf("start slave endpoint: %w", err)
	}

	err = m.clients.Start(runCtx, m.config.ClientAddress, func(conn net.Conn) {
		m.handler.Handle(runCtx, conn)
	})
	if err != nil {
		m.slaves.Stop()
		cancel()
		m.reset()
		return fmt.Errorf("start client endpoint: %w", err)
	}

	m.cancel = cancel
	m.state.Store(MasterStateRunning)
	m.log.Info("Master started",
		zap.String("client_address", m.clients.Addr().String()),
		zap.String("slave_address", m.slaves.Addr().String()))
	return nil
}

func (m *Master) reset() {
	m.state.Store(MasterStateStopped)
	m.started.Store(false)
}

// Stop closes both endpoints, cancels running work and waits for connection
// handlers to return or ctx to expire.
func (m *Master) Stop(ctx context.Context) error {
	if !m.started.Load() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Store(MasterStateStopping)

	m.clients.Stop()
	m.slaves.Stop()
	if m.cancel != nil {
		m.cancel()
	}
	m.registry.CloseAll()

	done := make(chan struct{})
	go func() {
		m.clients.Wait()
		m.slaves.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("wait for connection handlers: %w", ctx.Err())
	}

	m.reset()
	m.log.Info("Master stopped")
	return err
}

// GetState returns the current master state.
func (m *Master) GetState() MasterState {
	return m.state.Load().(MasterState)
}

// IsRunning returns true if the master is running.
func (m *Master) IsRunning() bool {
	return m.GetState() == MasterStateRunning
}

// ClientAddr returns the bound client endpoint, or nil when stopped.
func (m *Master) ClientAddr() net.Addr {
	return m.clients.Addr()
}

// SlaveAddr returns the bound slave endpoint, or nil when stopped.
func (m *Master) SlaveAddr() net.Addr {
	return m.slaves.Addr()
}

// Registry returns the slave registry.
func (m *Master) Registry() *SlaveRegistry {
	return m.registry
}

// Stats returns the dispatch statistics.
func (m *Master) Stats() *Stats {
	return m.stats
}
