package master

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yqhp/freq-engine/internal/slave"
	"yqhp/freq-engine/pkg/protocol"
	"yqhp/freq-engine/pkg/types"
)

func testMasterConfig() *Config {
	return &Config{
		ClientAddress:    "127.0.0.1:0",
		SlaveAddress:     "127.0.0.1:0",
		TaskTimeout:      2 * time.Second,
		LivenessInterval: 20 * time.Millisecond,
		AcceptBackoff:    10 * time.Millisecond,
	}
}

func startMaster(t *testing.T) *Master {
	t.Helper()
	m := NewMaster(testMasterConfig(), zap.NewNop())
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m
}

func startWorkers(t *testing.T, m *Master, n int) {
	t.Helper()
	for i := range n {
		w := slave.NewWorkerSlave(&slave.Config{MasterAddress: m.SlaveAddr().String(), DialTimeout: time.Second}, zap.NewNop())
		go func() { _ = w.Run(context.Background()) }()
		t.Cleanup(w.Stop)
		require.Eventually(t, func() bool { return m.Registry().Count() == i+1 }, 5*time.Second, 10*time.Millisecond)
	}
}

func submitJob(addr string, job *types.Job) (*types.AggregateResult, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return nil, err
	}

	if err := protocol.NewEncoder(conn).Encode(job); err != nil {
		return nil, err
	}
	var result types.AggregateResult
	if err := protocol.NewDecoder(conn).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func submit(t *testing.T, m *Master, job *types.Job) *types.AggregateResult {
	t.Helper()
	result, err := submitJob(m.ClientAddr().String(), job)
	require.NoError(t, err)
	return result
}

func TestMasterLifecycle(t *testing.T) {
	m := NewMaster(testMasterConfig(), nil)
	assert.Equal(t, MasterStateStopped, m.GetState())
	assert.Nil(t, m.ClientAddr())

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.IsRunning())
	assert.NotNil(t, m.ClientAddr())
	assert.NotNil(t, m.SlaveAddr())
	assert.Error(t, m.Start(context.Background()))

	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, MasterStateStopped, m.GetState())
	assert.Nil(t, m.SlaveAddr())
	require.NoError(t, m.Stop(context.Background()))
}

func TestMasterStartFailsOnBusyAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testMasterConfig()
	cfg.ClientAddress = ln.Addr().String()
	m := NewMaster(cfg, zap.NewNop())

	err = m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start client endpoint")
	assert.Equal(t, MasterStateStopped, m.GetState())
	assert.Nil(t, m.SlaveAddr())
}

func TestMasterEndToEnd(t *testing.T) {
	m := startMaster(t)
	startWorkers(t, m, 3)

	job := &types.Job{Keywords: []string{"hello", "world", "Fox"}}
	for i := range 7 {
		job.Documents = append(job.Documents, types.Document{
			Name:    fmt.Sprintf("doc-%d.txt", i),
			Content: "Hello world! Hello user. The quick brown fox.",
		})
	}

	result := submit(t, m, job)

	require.Len(t, result.FileOrder, 7)
	for i, name := range result.FileOrder {
		assert.Equal(t, fmt.Sprintf("doc-%d.txt", i), name)
		assert.InDelta(t, 25.0, result.Percentage("hello", name), 1e-9)
		assert.InDelta(t, 12.5, result.Percentage("world", name), 1e-9)
		assert.InDelta(t, 12.5, result.Percentage("Fox", name), 1e-9)
	}
	assert.Equal(t, []string{"hello", "world", "Fox"}, result.KeywordOrder)

	snap := m.Stats().Snapshot()
	assert.Equal(t, int64(7), snap.TasksDispatched)
	assert.Zero(t, snap.TasksFailed)
	assert.Equal(t, int64(1), snap.JobsHandled)
}

func TestMasterWithoutSlaves(t *testing.T) {
	m := startMaster(t)

	result := submit(t, m, &types.Job{
		Documents: []types.Document{{Name: "a.txt", Content: "a"}},
		Keywords:  []string{"a", "b"},
	})

	assert.Empty(t, result.FileOrder)
	assert.Len(t, result.Matrix, 2)
}

func TestMasterConcurrentJobs(t *testing.T) {
	m := startMaster(t)
	startWorkers(t, m, 2)

	addr := m.ClientAddr().String()
	results := make(chan *types.AggregateResult, 5)
	errs := make(chan error, 5)
	for i := range 5 {
		go func() {
			job := &types.Job{
				Documents: []types.Document{
					{Name: fmt.Sprintf("job%d-a", i), Content: "x y"},
					{Name: fmt.Sprintf("job%d-b", i), Content: "x x"},
					{Name: fmt.Sprintf("job%d-c", i), Content: "y"},
				},
				Keywords: []string{"x"},
			}
			res, err := submitJob(addr, job)
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}

	for range 5 {
		select {
		case res := <-results:
			require.Len(t, res.FileOrder, 3)
			assert.InDelta(t, 50.0, res.Matrix["x"][res.FileOrder[0]], 1e-9)
			assert.InDelta(t, 100.0, res.Matrix["x"][res.FileOrder[1]], 1e-9)
			assert.Zero(t, res.Matrix["x"][res.FileOrder[2]])
		case err := <-errs:
			t.Fatalf("submit failed: %v", err)
		case <-time.After(15 * time.Second):
			t.Fatal("job did not complete")
		}
	}
}

func TestMasterDropsStoppedSlave(t *testing.T) {
	m := startMaster(t)

	w := slave.NewWorkerSlave(&slave.Config{MasterAddress: m.SlaveAddr().String(), DialTimeout: time.Second}, zap.NewNop())
	go func() { _ = w.Run(context.Background()) }()
	require.Eventually(t, func() bool { return m.Registry().Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	w.Stop()
	require.Eventually(t, func() bool { return m.Registry().Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}
