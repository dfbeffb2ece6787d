package rest

import (
	"time"

	"yqhp/freq-engine/internal/master"
	"yqhp/freq-engine/pkg/types"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Slaves    int    `json:"slaves"`
}

// SlaveResponse represents a connected slave.
type SlaveResponse struct {
	ID          int64  `json:"id"`
	Address     string `json:"address"`
	State       string `json:"state"`
	ConnectedAt string `json:"connected_at"`
}

// SlaveListResponse represents a list of slaves.
type SlaveListResponse struct {
	Slaves []*SlaveResponse `json:"slaves"`
	Total  int              `json:"total"`
}

// StatsResponse carries dispatch statistics.
type StatsResponse struct {
	master.StatsSnapshot
	ConnectedSlaves int `json:"connected_slaves"`
}

func toSlaveResponse(info *types.SlaveInfo) *SlaveResponse {
	return &SlaveResponse{
		ID:          info.ID,
		Address:     info.Address,
		State:       string(info.State),
		ConnectedAt: info.ConnectedAt.Format(time.RFC3339),
	}
}
