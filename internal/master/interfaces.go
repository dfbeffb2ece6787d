package master

import (
	"context"

	"yqhp/freq-engine/pkg/types"
)

// Dispatcher hands tasks to connected slaves.
// SlaveRegistry is the production implementation.
type Dispatcher interface {
	// Snapshot returns the slaves eligible for a new job.
	Snapshot() []*SlaveConn

	// Dispatch runs one task on one slave and always returns a result.
	Dispatch(ctx context.Context, slave *SlaveConn, task *types.Task) *types.TaskResult
}

var _ Dispatcher = (*SlaveRegistry)(nil)
