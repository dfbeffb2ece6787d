package rest

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"yqhp/freq-engine/internal/master"
)

// healthCheck handles GET /health
func (s *Server) healthCheck(c *fiber.Ctx) error {
	slaves := 0
	if s.registry != nil {
		slaves = s.registry.Count()
	}
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Slaves:    slaves,
	})
}

// listSlaves handles GET /api/v1/slaves
func (s *Server) listSlaves(c *fiber.Ctx) error {
	if s.registry == nil {
		return c.JSON(SlaveListResponse{
			Slaves: []*SlaveResponse{},
			Total:  0,
		})
	}

	slaves := s.registry.ListSlaves()
	responses := make([]*SlaveResponse, len(slaves))
	for i, info := range slaves {
		responses[i] = toSlaveResponse(info)
	}

	return c.JSON(SlaveListResponse{
		Slaves: responses,
		Total:  len(responses),
	})
}

// getSlave handles GET /api/v1/slaves/:id
func (s *Server) getSlave(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Slave ID must be an integer",
		})
	}

	if s.registry == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Slave not found",
		})
	}

	info, err := s.registry.GetSlave(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	}
	return c.JSON(toSlaveResponse(info))
}

// getStats handles GET /api/v1/stats
func (s *Server) getStats(c *fiber.Ctx) error {
	var snap master.StatsSnapshot
	if s.stats != nil {
		snap = s.stats.Snapshot()
	}

	resp := StatsResponse{StatsSnapshot: snap}
	if s.registry != nil {
		resp.ConnectedSlaves = s.registry.Count()
	}
	return c.JSON(resp)
}
