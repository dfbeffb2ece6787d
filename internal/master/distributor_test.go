package master

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yqhp/freq-engine/pkg/types"
)

func makeJob(docs int, keywords ...string) *types.Job {
	job := &types.Job{Keywords: keywords}
	for i := range docs {
		job.Documents = append(job.Documents, types.Document{
			Name:    fmt.Sprintf("doc-%d.txt", i),
			Content: fmt.Sprintf("alpha beta doc%d alpha", i),
		})
	}
	return job
}

func TestPlanRoundRobin(t *testing.T) {
	slaves := newTestSlaves(2)
	plan := Plan(makeJob(5, "alpha"), slaves)

	require.Len(t, plan, 5)
	for i, a := range plan {
		assert.Equal(t, i, a.Task.TaskID)
		assert.Equal(t, fmt.Sprintf("doc-%d.txt", i), a.Task.DocumentName)
		assert.Same(t, slaves[i%2], a.Slave)
		assert.Equal(t, []string{"alpha"}, a.Task.Keywords)
	}

	assert.Nil(t, Plan(makeJob(3), nil))
}

func TestDistributeSingleDocument(t *testing.T) {
	d := NewDistributor(newFakeDispatcher(1), zap.NewNop(), nil)
	job := &types.Job{
		Documents: []types.Document{{Name: "a.txt", Content: "Hello world! Hello user."}},
		Keywords:  []string{"hello", "world"},
	}

	result, err := d.Distribute(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, result.FileOrder)
	assert.InDelta(t, 50.0, result.Percentage("hello", "a.txt"), 1e-9)
	assert.InDelta(t, 25.0, result.Percentage("world", "a.txt"), 1e-9)
}

func TestDistributeEmptyDocument(t *testing.T) {
	d := NewDistributor(newFakeDispatcher(1), zap.NewNop(), nil)
	job := &types.Job{
		Documents: []types.Document{{Name: "empty.txt", Content: ""}},
		Keywords:  []string{"hello", "world"},
	}

	result, err := d.Distribute(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []string{"empty.txt"}, result.FileOrder)
	assert.Equal(t, map[string]float64{"empty.txt": 0}, result.Matrix["hello"])
	assert.Equal(t, map[string]float64{"empty.txt": 0}, result.Matrix["world"])
}

func TestDistributeTwoDocumentsTwoSlaves(t *testing.T) {
	fake := newFakeDispatcher(2)
	d := NewDistributor(fake, zap.NewNop(), nil)

	result, err := d.Distribute(context.Background(), makeJob(2, "alpha"))
	require.NoError(t, err)

	assert.Equal(t, []int{0}, fake.assigned[1])
	assert.Equal(t, []int{1}, fake.assigned[2])
	assert.Equal(t, []string{"doc-0.txt", "doc-1.txt"}, result.FileOrder)
}

func TestDistributeTimedOutSlave(t *testing.T) {
	fake := newFakeDispatcher(2)
	fake.respond = func(s *SlaveConn, task *types.Task) *types.TaskResult {
		if s.ID() == 2 {
			return types.NewErrorResult(task.TaskID, task.DocumentName, types.ErrMsgTimeout)
		}
		return countTask(task)
	}
	stats := NewStats()
	d := NewDistributor(fake, zap.NewNop(), stats)

	result, err := d.Distribute(context.Background(), makeJob(2, "alpha", "beta"))
	require.NoError(t, err)

	assert.Equal(t, []string{"doc-0.txt", "doc-1.txt"}, result.FileOrder)
	assert.InDelta(t, 50.0, result.Percentage("alpha", "doc-0.txt"), 1e-9)
	for _, kw := range []string{"alpha", "beta"} {
		v, ok := result.Matrix[kw]["doc-1.txt"]
		assert.True(t, ok, "errored document has an explicit cell for %s", kw)
		assert.Zero(t, v)
	}

	snap := stats.Snapshot()
	assert.Equal(t, int64(2), snap.TasksDispatched)
	assert.Equal(t, int64(1), snap.TasksFailed)
	assert.Equal(t, int64(1), snap.TasksTimedOut)
}

func TestDistributeNoSlaves(t *testing.T) {
	stats := NewStats()
	d := NewDistributor(newFakeDispatcher(0), zap.NewNop(), stats)

	result, err := d.Distribute(context.Background(), makeJob(3, "alpha", "beta"))
	require.NoError(t, err)

	assert.Empty(t, result.FileOrder)
	assert.Equal(t, []string{"alpha", "beta"}, result.KeywordOrder)
	assert.Empty(t, result.Matrix["alpha"])
	assert.Empty(t, result.Matrix["beta"])
	assert.Equal(t, int64(1), stats.Snapshot().JobsWithoutSlaves)
}

func TestDistributeNilJob(t *testing.T) {
	d := NewDistributor(newFakeDispatcher(1), zap.NewNop(), nil)
	_, err := d.Distribute(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrNilJob)
}

func TestDistributeFillsMissingDocumentName(t *testing.T) {
	fake := newFakeDispatcher(1)
	fake.respond = func(_ *SlaveConn, task *types.Task) *types.TaskResult {
		return types.NewErrorResult(task.TaskID, "", "malformed task")
	}
	d := NewDistributor(fake, zap.NewNop(), nil)

	result, err := d.Distribute(context.Background(), makeJob(1, "alpha"))
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-0.txt"}, result.FileOrder)
}

func TestDistributeRunsTasksConcurrently(t *testing.T) {
	fake := newFakeDispatcher(4)
	fake.respond = func(_ *SlaveConn, task *types.Task) *types.TaskResult {
		time.Sleep(100 * time.Millisecond)
		return countTask(task)
	}
	d := NewDistributor(fake, zap.NewNop(), nil)

	start := time.Now()
	_, err := d.Distribute(context.Background(), makeJob(4, "alpha"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 350*time.Millisecond)
}

// TestDistributionProperties checks the round-robin and aggregation
// properties for arbitrary job shapes.
func TestDistributionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("document i goes to slave i mod W with task id i", prop.ForAll(
		func(docs, workers int) bool {
			fake := newFakeDispatcher(workers)
			d := NewDistributor(fake, zap.NewNop(), nil)
			if _, err := d.Distribute(context.Background(), makeJob(docs, "alpha")); err != nil {
				return false
			}

			seen := 0
			for id, tasks := range fake.assigned {
				for _, taskID := range tasks {
					if int64(taskID%workers)+1 != id {
						return false
					}
					seen++
				}
			}
			return seen == docs
		},
		gen.IntRange(0, 40),
		gen.IntRange(1, 8),
	))

	properties.Property("file order covers every document and every keyword is a row", prop.ForAll(
		func(docs, workers, failEvery int) bool {
			fake := newFakeDispatcher(workers)
			fake.respond = func(_ *SlaveConn, task *types.Task) *types.TaskResult {
				if task.TaskID%failEvery == 0 {
					return types.NewErrorResult(task.TaskID, task.DocumentName, types.ErrMsgTimeout)
				}
				return countTask(task)
			}
			d := NewDistributor(fake, zap.NewNop(), nil)

			keywords := []string{"alpha", "beta", "missing"}
			result, err := d.Distribute(context.Background(), makeJob(docs, keywords...))
			if err != nil || len(result.FileOrder) != docs {
				return false
			}
			for i, name := range result.FileOrder {
				if name != fmt.Sprintf("doc-%d.txt", i) {
					return false
				}
			}
			for _, kw := range keywords {
				row, ok := result.Matrix[kw]
				if !ok || len(row) != docs {
					return false
				}
				for _, pct := range row {
					if pct < 0 || pct > 100 {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(0, 30),
		gen.IntRange(1, 6),
		gen.IntRange(1, 5),
	))

	properties.Property("distributing the same job twice gives the same matrix", prop.ForAll(
		func(docs, workers int) bool {
			job := makeJob(docs, "alpha", "beta")
			first, err1 := NewDistributor(newFakeDispatcher(workers), zap.NewNop(), nil).Distribute(context.Background(), job)
			second, err2 := NewDistributor(newFakeDispatcher(workers), zap.NewNop(), nil).Distribute(context.Background(), job)
			if err1 != nil || err2 != nil {
				return false
			}
			return assert.ObjectsAreEqual(first, second)
		},
		gen.IntRange(0, 20),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
