package master

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"yqhp/freq-engine/pkg/protocol"
	"yqhp/freq-engine/pkg/types"
)

// RegistryOptions tunes the slave registry.
type RegistryOptions struct {
	// TaskTimeout bounds one dispatch from write to matching response.
	TaskTimeout time.Duration
	// LivenessInterval is the polling period of each slave's keep-alive loop.
	LivenessInterval time.Duration
	// PeekTimeout is how long a liveness check waits for the socket.
	PeekTimeout time.Duration
}

// DefaultRegistryOptions returns the standard timings.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		TaskTimeout:      10 * time.Second,
		LivenessInterval: time.Second,
		PeekTimeout:      5 * time.Millisecond,
	}
}

// SlaveConn is the registry's record of one connected slave. The reader and
// writer live as long as the connection; mu serializes whole exchanges.
type SlaveConn struct {
	id          int64
	address     string
	connectedAt time.Time

	conn   net.Conn
	reader *bufio.Reader
	dec    *protocol.Decoder
	enc    *protocol.Encoder

	mu        sync.Mutex
	state     atomic.Value // types.SlaveState
	closeOnce sync.Once

	// latePending is set while an answer to a timed-out dispatch may still
	// arrive. Guarded by mu.
	latePending bool
}

func newSlaveConn(id int64, conn net.Conn) *SlaveConn {
	reader := bufio.NewReader(conn)
	s := &SlaveConn{
		id:          id,
		address:     conn.RemoteAddr().String(),
		connectedAt: time.Now(),
		conn:        conn,
		reader:      reader,
		dec:         protocol.NewDecoder(reader),
		enc:         protocol.NewEncoder(bufio.NewWriter(conn)),
	}
	s.state.Store(types.SlaveStateConnected)
	return s
}

// ID returns the registry-assigned identifier.
func (s *SlaveConn) ID() int64 { return s.id }

// Address returns the slave's remote address.
func (s *SlaveConn) Address() string { return s.address }

// State returns the current connection state.
func (s *SlaveConn) State() types.SlaveState {
	if st, ok := s.state.Load().(types.SlaveState); ok {
		return st
	}
	return types.SlaveStateDisconnected
}

// Info returns a copy of the slave's public fields.
func (s *SlaveConn) Info() *types.SlaveInfo {
	return &types.SlaveInfo{
		ID:          s.id,
		Address:     s.address,
		State:       s.State(),
		ConnectedAt: s.connectedAt,
	}
}

func (s *SlaveConn) markDisconnected() {
	s.state.Store(types.SlaveStateDisconnected)
}

func (s *SlaveConn) close() {
	s.closeOnce.Do(func() {
		s.markDisconnected()
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// SlaveRegistry tracks connected slaves and drives request/response
// exchanges with them.
type SlaveRegistry struct {
	opts RegistryOptions
	log  *zap.Logger

	nextID  atomic.Int64
	nextSeq atomic.Uint64

	slaves map[int64]*SlaveConn
	mu     sync.RWMutex

	// Event subscribers
	subscribers []chan *types.SlaveEvent
	subMu       sync.RWMutex
}

// NewSlaveRegistry creates an empty registry. Zero option fields take the
// defaults.
func NewSlaveRegistry(opts RegistryOptions, log *zap.Logger) *SlaveRegistry {
	def := DefaultRegistryOptions()
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = def.TaskTimeout
	}
	if opts.LivenessInterval <= 0 {
		opts.LivenessInterval = def.LivenessInterval
	}
	if opts.PeekTimeout <= 0 {
		opts.PeekTimeout = def.PeekTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &SlaveRegistry{
		opts:        opts,
		log:         log.Named("registry"),
		slaves:      make(map[int64]*SlaveConn),
		subscribers: make([]chan *types.SlaveEvent, 0),
	}
}

// Register adds conn as a new slave and then blocks in its keep-alive loop
// until ctx is cancelled or the connection is found dead. On return the slave
// is removed and the connection closed.
func (r *SlaveRegistry) Register(ctx context.Context, conn net.Conn) {
	slave := r.add(conn)
	defer r.remove(slave)

	r.keepAlive(ctx, slave)
}

func (r *SlaveRegistry) add(conn net.Conn) *SlaveConn {
	slave := newSlaveConn(r.nextID.Add(1), conn)

	r.mu.Lock()
	r.slaves[slave.id] = slave
	r.mu.Unlock()

	r.log.Info("Slave connected", zap.Int64("slave_id", slave.id), zap.String("address", slave.address))
	r.notifyEvent(&types.SlaveEvent{
		Type:    types.SlaveEventRegistered,
		SlaveID: slave.id,
		Slave:   slave.Info(),
	})
	return slave
}

func (r *SlaveRegistry) remove(slave *SlaveConn) {
	r.mu.Lock()
	delete(r.slaves, slave.id)
	r.mu.Unlock()

	slave.close()

	r.log.Info("Slave disconnected", zap.Int64("slave_id", slave.id), zap.String("address", slave.address))
	r.notifyEvent(&types.SlaveEvent{
		Type:    types.SlaveEventUnregistered,
		SlaveID: slave.id,
		Slave:   slave.Info(),
	})
}

// keepAlive polls the connection at LivenessInterval. It performs no
// handshake with the slave.
func (r *SlaveRegistry) keepAlive(ctx context.Context, slave *SlaveConn) {
	ticker := time.NewTicker(r.opts.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Debug("Keep-alive loop cancelled", zap.Int64("slave_id", slave.id))
			return
		case <-ticker.C:
		}

		if !r.alive(slave) {
			return
		}
	}
}

// alive peeks at the socket without consuming data. The check is skipped while
// a dispatch holds the slave, since the dispatch observes failures itself.
func (r *SlaveRegistry) alive(slave *SlaveConn) bool {
	if slave.State() == types.SlaveStateDisconnected {
		return false
	}
	if !slave.mu.TryLock() {
		return true
	}
	defer slave.mu.Unlock()

	_ = slave.conn.SetReadDeadline(time.Now().Add(r.opts.PeekTimeout))
	_, err := slave.reader.Peek(1)
	_ = slave.conn.SetReadDeadline(time.Time{})

	if err == nil || isTimeout(err) {
		return true
	}

	r.log.Debug("Liveness check failed", zap.Int64("slave_id", slave.id), zap.Error(err))
	slave.markDisconnected()
	return false
}

// Dispatch sends task to slave and waits for the matching result. It never
// returns nil: failures are reported through TaskResult.Error.
func (r *SlaveRegistry) Dispatch(ctx context.Context, slave *SlaveConn, task *types.Task) *types.TaskResult {
	slave.mu.Lock()
	defer slave.mu.Unlock()

	if slave.State() == types.SlaveStateDisconnected {
		return types.NewErrorResult(task.TaskID, task.DocumentName, types.ErrMsgSlaveDisconnected)
	}

	deadline := time.Now().Add(r.opts.TaskTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	r.discardStale(slave)

	defer slave.conn.SetDeadline(time.Time{})
	if err := slave.conn.SetDeadline(deadline); err != nil {
		return r.failed(ctx, slave, task, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = slave.conn.SetDeadline(time.Now())
	})
	defer stop()

	wire := *task
	wire.Seq = r.nextSeq.Add(1)

	if err := slave.enc.Encode(&wire); err != nil {
		// the buffered writer keeps the error and a partial line may be on
		// the wire, so the connection is not reusable
		res := r.failed(ctx, slave, task, err)
		slave.close()
		return res
	}

	for {
		line, err := slave.dec.ReadLine()
		if err != nil {
			if ctx.Err() != nil || isTimeout(err) {
				slave.latePending = true
			}
			return r.failed(ctx, slave, task, err)
		}

		var res types.TaskResult
		if err := protocol.Unmarshal(line, &res); err != nil {
			if !slave.latePending {
				return r.malformed(slave, task, err)
			}
			// the tail of an answer cut off by an earlier timeout
			r.log.Warn("Skipping malformed line from slave", zap.Int64("slave_id", slave.id), zap.Error(err))
			continue
		}
		if !matches(&wire, &res) {
			r.log.Warn("Discarding stale result",
				zap.Int64("slave_id", slave.id),
				zap.Int("expected_task", task.TaskID),
				zap.Int("got_task", res.TaskID),
				zap.Uint64("expected_seq", wire.Seq),
				zap.Uint64("got_seq", res.Seq))
			continue
		}

		// answers arrive in order, so nothing older can follow
		slave.latePending = false
		if res.KeywordCounts == nil {
			res.KeywordCounts = make(map[string]int)
		}
		return &res
	}
}

// matches accepts a result for task. A result without a document name is a
// slave-side error report and only carries the id. A result without a
// sequence number comes from a slave that does not echo it.
func matches(task *types.Task, res *types.TaskResult) bool {
	if res.TaskID != task.TaskID {
		return false
	}
	if res.Seq != 0 && res.Seq != task.Seq {
		return false
	}
	return res.DocumentName == "" || res.DocumentName == task.DocumentName
}

// discardStale drops complete lines already waiting on the connection. They
// are late answers to tasks that timed out earlier.
func (r *SlaveRegistry) discardStale(slave *SlaveConn) {
	_ = slave.conn.SetReadDeadline(time.Now().Add(r.opts.PeekTimeout))
	defer slave.conn.SetReadDeadline(time.Time{})

	for {
		if slave.reader.Buffered() == 0 {
			if _, err := slave.reader.Peek(1); err != nil {
				return
			}
		}
		buffered, _ := slave.reader.Peek(slave.reader.Buffered())
		if bytes.IndexByte(buffered, '\n') < 0 {
			return
		}

		line, err := slave.dec.ReadLine()
		if err != nil && !errors.Is(err, protocol.ErrEmptyLine) {
			return
		}
		if len(line) > 0 {
			r.log.Warn("Discarding stale line from slave", zap.Int64("slave_id", slave.id), zap.Int("bytes", len(line)))
		}
	}
}

// failed maps a transport error onto the task result contract.
func (r *SlaveRegistry) failed(ctx context.Context, slave *SlaveConn, task *types.Task, err error) *types.TaskResult {
	var msg string
	switch {
	case ctx.Err() != nil:
		msg = ctx.Err().Error()
	case isTimeout(err):
		msg = types.ErrMsgTimeout
	case errors.Is(err, protocol.ErrEmptyLine):
		msg = types.ErrMsgEmptyResponse
	case errors.Is(err, io.EOF):
		msg = types.ErrMsgEmptyResponse
		slave.markDisconnected()
	default:
		msg = err.Error()
		slave.markDisconnected()
	}

	r.log.Warn("Dispatch failed",
		zap.Int64("slave_id", slave.id),
		zap.Int("task_id", task.TaskID),
		zap.String("document", task.DocumentName),
		zap.String("error", msg))
	return types.NewErrorResult(task.TaskID, task.DocumentName, msg)
}

// malformed reports an undecodable answer to the current task. The framing
// is intact, so the slave stays connected.
func (r *SlaveRegistry) malformed(slave *SlaveConn, task *types.Task, err error) *types.TaskResult {
	msg := fmt.Sprintf("malformed response: %v", err)
	r.log.Warn("Dispatch failed",
		zap.Int64("slave_id", slave.id),
		zap.Int("task_id", task.TaskID),
		zap.String("document", task.DocumentName),
		zap.String("error", msg))
	return types.NewErrorResult(task.TaskID, task.DocumentName, msg)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Snapshot returns the connected slaves ordered by id. The slice is a copy;
// later registrations and removals do not affect it.
func (r *SlaveRegistry) Snapshot() []*SlaveConn {
	r.mu.RLock()
	result := make([]*SlaveConn, 0, len(r.slaves))
	for _, s := range r.slaves {
		if s.State() == types.SlaveStateConnected {
			result = append(result, s)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b *SlaveConn) int {
		return int(a.id - b.id)
	})
	return result
}

// ListSlaves returns public views of all registered slaves ordered by id.
func (r *SlaveRegistry) ListSlaves() []*types.SlaveInfo {
	r.mu.RLock()
	result := make([]*types.SlaveInfo, 0, len(r.slaves))
	for _, s := range r.slaves {
		result = append(result, s.Info())
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b *types.SlaveInfo) int {
		return int(a.ID - b.ID)
	})
	return result
}

// GetSlave returns a single slave's information.
func (r *SlaveRegistry) GetSlave(id int64) (*types.SlaveInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slave, exists := r.slaves[id]
	if !exists {
		return nil, fmt.Errorf("slave not found: %d", id)
	}
	return slave.Info(), nil
}

// Count returns the number of registered slaves.
func (r *SlaveRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slaves)
}

// CloseAll closes every slave connection. Keep-alive loops notice on their
// next poll and unregister the slaves.
func (r *SlaveRegistry) CloseAll() {
	r.mu.RLock()
	slaves := make([]*SlaveConn, 0, len(r.slaves))
	for _, s := range r.slaves {
		slaves = append(slaves, s)
	}
	r.mu.RUnlock()

	for _, s := range slaves {
		s.close()
	}
}

// WatchSlaves returns a channel of registration events until ctx is done.
func (r *SlaveRegistry) WatchSlaves(ctx context.Context) (<-chan *types.SlaveEvent, error) {
	ch := make(chan *types.SlaveEvent, 100)

	r.subMu.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.subMu.Unlock()

	go func() {
		<-ctx.Done()
		r.removeSubscriber(ch)
		close(ch)
	}()

	return ch, nil
}

// notifyEvent sends an event to all subscribers.
func (r *SlaveRegistry) notifyEvent(event *types.SlaveEvent) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()

	for _, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
}

// removeSubscriber removes a subscriber channel.
func (r *SlaveRegistry) removeSubscriber(ch chan *types.SlaveEvent) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for i, sub := range r.subscribers {
		if sub == ch {
			r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
			break
		}
	}
}
