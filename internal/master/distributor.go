package master

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"yqhp/freq-engine/pkg/types"
)

// Assignment pairs one task with the slave that runs it.
type Assignment struct {
	Slave *SlaveConn
	Task  *types.Task
}

// Plan assigns document i to slave i mod len(slaves) with task id i.
// It returns nil when there are no slaves.
func Plan(job *types.Job, slaves []*SlaveConn) []Assignment {
	if len(slaves) == 0 {
		return nil
	}

	plan := make([]Assignment, len(job.Documents))
	for i, doc := range job.Documents {
		plan[i] = Assignment{
			Slave: slaves[i%len(slaves)],
			Task: &types.Task{
				TaskID:          i,
				DocumentName:    doc.Name,
				DocumentContent: doc.Content,
				Keywords:        job.Keywords,
			},
		}
	}
	return plan
}

// Distributor splits a job into per-document tasks, runs them on the
// connected slaves in parallel and aggregates the answers.
type Distributor struct {
	dispatcher Dispatcher
	log        *zap.Logger
	stats      *Stats
}

// NewDistributor creates a distributor. stats may be nil.
func NewDistributor(dispatcher Dispatcher, log *zap.Logger, stats *Stats) *Distributor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Distributor{
		dispatcher: dispatcher,
		log:        log.Named("distributor"),
		stats:      stats,
	}
}

// Distribute runs job on the slaves connected right now. With no slaves it
// returns one empty row per keyword and no documents. It waits for every
// task, so the result always covers every document when slaves exist.
func (d *Distributor) Distribute(ctx context.Context, job *types.Job) (*types.AggregateResult, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	slaves := d.dispatcher.Snapshot()
	if len(slaves) == 0 {
		d.log.Warn("No slaves connected, returning empty result",
			zap.Int("documents", len(job.Documents)),
			zap.Int("keywords", len(job.Keywords)))
		d.stats.JobWithoutSlaves()
		return types.NewAggregateResult(job.Keywords), nil
	}

	plan := Plan(job, slaves)
	d.log.Debug("Dispatching job",
		zap.Int("tasks", len(plan)),
		zap.Int("slaves", len(slaves)))

	results := make([]*types.TaskResult, len(plan))
	var wg sync.WaitGroup
	for i, a := range plan {
		wg.Go(func() {
			results[i] = d.run(ctx, a)
		})
	}
	wg.Wait()

	return Aggregate(job, results), nil
}

func (d *Distributor) run(ctx context.Context, a Assignment) *types.TaskResult {
	start := time.Now()
	res := d.dispatcher.Dispatch(ctx, a.Slave, a.Task)
	d.stats.RecordTask(time.Since(start), res)

	if res == nil {
		res = types.NewErrorResult(a.Task.TaskID, a.Task.DocumentName, types.ErrMsgEmptyResponse)
	}
	// slave-side error reports may not echo the document name
	if res.DocumentName == "" {
		res.DocumentName = a.Task.DocumentName
	}

	if res.Failed() {
		d.log.Warn("Task failed",
			zap.Int("task_id", a.Task.TaskID),
			zap.String("document", a.Task.DocumentName),
			zap.Int64("slave_id", a.Slave.ID()),
			zap.String("error", res.Error))
	} else {
		d.log.Debug("Task completed",
			zap.Int("task_id", a.Task.TaskID),
			zap.String("document", a.Task.DocumentName),
			zap.Int64("slave_id", a.Slave.ID()),
			zap.Int64("processing_ms", res.ProcessingMs))
	}
	return res
}
