package master

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/freq-engine/pkg/protocol"
	"yqhp/freq-engine/pkg/types"
)

// ClientHandler serves one job request per client connection.
type ClientHandler struct {
	distributor *Distributor
	log         *zap.Logger
	stats       *Stats
}

// NewClientHandler creates a handler backed by distributor. stats may be nil.
func NewClientHandler(distributor *Distributor, log *zap.Logger, stats *Stats) *ClientHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ClientHandler{
		distributor: distributor,
		log:         log.Named("client-handler"),
		stats:       stats,
	}
}

// Handle reads one job line, distributes it and writes one result line.
// Empty or malformed requests are logged and the connection is closed without
// a reply. The connection is always closed on return.
func (h *ClientHandler) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	log := h.log.With(
		zap.String("job_id", uuid.NewString()[:8]),
		zap.String("remote", conn.RemoteAddr().String()))

	// unblock the request read on shutdown
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var job types.Job
	if err := protocol.NewDecoder(conn).Decode(&job); err != nil {
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, protocol.ErrEmptyLine):
			log.Warn("Empty request, closing connection")
		case ctx.Err() != nil:
			log.Info("Request aborted by shutdown")
		default:
			log.Warn("Malformed request, closing connection", zap.Error(err))
		}
		return
	}

	job.Normalize()
	log.Info("Job received",
		zap.Strings("documents", job.DocumentNames()),
		zap.Strings("keywords", job.Keywords))

	start := time.Now()
	result, err := h.distributor.Distribute(ctx, &job)
	if err != nil {
		log.Error("Job distribution failed", zap.Error(err))
		return
	}
	result.TotalProcessingMs = time.Since(start).Milliseconds()
	h.stats.JobHandled()

	if err := protocol.NewEncoder(conn).Encode(result); err != nil {
		log.Warn("Failed to send result to client", zap.Error(err))
		return
	}

	log.Info("Job completed",
		zap.Int("files", len(result.FileOrder)),
		zap.Int64("total_processing_ms", result.TotalProcessingMs))
}
