package master

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"yqhp/freq-engine/internal/slave"
	"yqhp/freq-engine/pkg/protocol"
	"yqhp/freq-engine/pkg/types"
)

func newTestSlave(id int64) *SlaveConn {
	s := &SlaveConn{id: id, address: "test"}
	s.state.Store(types.SlaveStateConnected)
	return s
}

func newTestSlaves(n int) []*SlaveConn {
	out := make([]*SlaveConn, n)
	for i := range out {
		out[i] = newTestSlave(int64(i + 1))
	}
	return out
}

// countTask answers a task the way a healthy worker does.
func countTask(task *types.Task) *types.TaskResult {
	counts, total := slave.CountKeywords(task.DocumentContent, task.Keywords)
	return &types.TaskResult{
		TaskID:         task.TaskID,
		Seq:            task.Seq,
		DocumentName:   task.DocumentName,
		KeywordCounts:  counts,
		TotalWordCount: total,
	}
}

// fakeDispatcher records which slave received which task.
type fakeDispatcher struct {
	slaves  []*SlaveConn
	respond func(s *SlaveConn, task *types.Task) *types.TaskResult

	mu       sync.Mutex
	assigned map[int64][]int
}

func newFakeDispatcher(n int) *fakeDispatcher {
	return &fakeDispatcher{
		slaves:   newTestSlaves(n),
		respond:  func(_ *SlaveConn, task *types.Task) *types.TaskResult { return countTask(task) },
		assigned: make(map[int64][]int),
	}
}

func (f *fakeDispatcher) Snapshot() []*SlaveConn {
	return append([]*SlaveConn(nil), f.slaves...)
}

func (f *fakeDispatcher) Dispatch(_ context.Context, s *SlaveConn, task *types.Task) *types.TaskResult {
	f.mu.Lock()
	f.assigned[s.ID()] = append(f.assigned[s.ID()], task.TaskID)
	f.mu.Unlock()
	return f.respond(s, task)
}

// connectSlave opens a TCP connection and registers the accepted side with r.
// The returned conn is the slave's end.
func connectSlave(t *testing.T, ctx context.Context, r *SlaveRegistry) net.Conn {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server := <-accepted:
		go r.Register(ctx, server)
	case <-time.After(5 * time.Second):
		t.Fatal("accept timed out")
	}
	return client
}

// serveTasks answers every task line on conn with fn's result. A nil result
// sends nothing. It returns when conn is closed.
func serveTasks(conn net.Conn, fn func(task *types.Task) *types.TaskResult) {
	dec := protocol.NewDecoder(bufio.NewReader(conn))
	enc := protocol.NewEncoder(conn)
	for {
		var task types.Task
		if err := dec.Decode(&task); err != nil {
			if errors.Is(err, protocol.ErrEmptyLine) {
				continue
			}
			return
		}
		res := fn(&task)
		if res == nil {
			continue
		}
		if err := enc.Encode(res); err != nil {
			return
		}
	}
}
