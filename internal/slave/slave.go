package slave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"yqhp/freq-engine/pkg/protocol"
	"yqhp/freq-engine/pkg/types"
)

// ErrAlreadyRunning 在 Run 被重复调用时返回。
var ErrAlreadyRunning = errors.New("slave already running")

// Config 保存 Slave 节点的配置信息。
type Config struct {
	// MasterAddress 是 Master 节点 slave 端口的地址。
	MasterAddress string

	// DialTimeout 是连接 Master 的超时时间。
	DialTimeout time.Duration
}

// DefaultConfig 返回默认的 Slave 配置。
func DefaultConfig() *Config {
	return &Config{
		MasterAddress: "localhost:5001",
		DialTimeout:   5 * time.Second,
	}
}

// State 是 Slave 的运行状态。
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateListening    State = "listening"
	StateProcessing   State = "processing"
	StateDisconnected State = "disconnected"
)

// WorkerSlave 连接一个 Master 并串行处理它下发的任务。
type WorkerSlave struct {
	config *Config
	log    *zap.Logger

	// 状态管理
	state     atomic.Value // State
	processed atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewWorkerSlave 创建一个新的 Worker Slave。
func NewWorkerSlave(config *Config, log *zap.Logger) *WorkerSlave {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &WorkerSlave{
		config: config,
		log:    log.Named("slave"),
	}
	s.state.Store(StateIdle)
	return s
}

// Run 连接 Master 并处理任务，直到 Master 关闭连接、ctx 被取消或调用 Stop。
// 正常结束返回 nil；连接失败或传输错误时返回错误。
func (s *WorkerSlave) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	s.state.Store(StateConnecting)
	s.log.Info("Connecting to master", zap.String("address", s.config.MasterAddress))

	dialer := net.Dialer{Timeout: s.config.DialTimeout}
	conn, err := dialer.DialContext(runCtx, "tcp", s.config.MasterAddress)
	if err != nil {
		s.state.Store(StateDisconnected)
		return fmt.Errorf("connect to master %s: %w", s.config.MasterAddress, err)
	}
	defer conn.Close()

	// 取消时关闭连接以唤醒阻塞的读
	stop := context.AfterFunc(runCtx, func() { _ = conn.Close() })
	defer stop()

	s.log.Info("Connected to master", zap.String("local", conn.LocalAddr().String()))
	return s.serve(runCtx, conn)
}

func (s *WorkerSlave) serve(ctx context.Context, conn net.Conn) error {
	dec := protocol.NewDecoder(conn)
	enc := protocol.NewEncoder(conn)

	for {
		s.state.Store(StateListening)

		line, err := dec.ReadLine()
		if err != nil {
			if errors.Is(err, protocol.ErrEmptyLine) {
				continue
			}
			s.state.Store(StateDisconnected)
			switch {
			case ctx.Err() != nil:
				s.log.Info("Slave stopped")
				return nil
			case errors.Is(err, io.EOF):
				s.log.Info("Master closed the connection")
				return nil
			default:
				return fmt.Errorf("read task: %w", err)
			}
		}

		s.state.Store(StateProcessing)
		res := s.handleLine(line)
		if res == nil {
			continue
		}

		if err := enc.Encode(res); err != nil {
			s.state.Store(StateDisconnected)
			if ctx.Err() != nil {
				s.log.Info("Slave stopped")
				return nil
			}
			return fmt.Errorf("send result: %w", err)
		}
	}
}

// handleLine 解析一行任务并执行。无法解析的行如果仍能读出 task_id，
// 则返回带错误的结果，否则丢弃并返回 nil。
func (s *WorkerSlave) handleLine(line []byte) *types.TaskResult {
	var task types.Task
	if err := protocol.Unmarshal(line, &task); err != nil {
		id, ok := protocol.LookupInt(line, "task_id")
		if !ok {
			s.log.Warn("Dropping malformed task without task_id", zap.Error(err))
			return nil
		}
		s.log.Warn("Malformed task", zap.Int64("task_id", id), zap.Error(err))
		res := types.NewErrorResult(int(id), "", fmt.Sprintf("malformed task: %v", err))
		if seq, ok := protocol.LookupInt(line, "seq"); ok && seq > 0 {
			res.Seq = uint64(seq)
		}
		return res
	}
	return s.ExecuteTask(&task)
}

// ExecuteTask 执行单个任务。panic 会被恢复并作为错误结果返回。
func (s *WorkerSlave) ExecuteTask(task *types.Task) (res *types.TaskResult) {
	start := time.Now()
	log := s.log.With(zap.Int("task_id", task.TaskID), zap.String("document", task.DocumentName))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Task panic recovered",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res = types.NewErrorResult(task.TaskID, task.DocumentName, fmt.Sprintf("task panic: %v", r))
		}
		res.Seq = task.Seq
		res.ProcessingMs = time.Since(start).Milliseconds()
	}()

	counts, total := CountKeywords(task.DocumentContent, task.Keywords)
	s.processed.Add(1)

	log.Debug("Task processed", zap.Int("total_words", total))
	return &types.TaskResult{
		TaskID:         task.TaskID,
		DocumentName:   task.DocumentName,
		KeywordCounts:  counts,
		TotalWordCount: total,
	}
}

// Stop 取消正在运行的 Run。未运行时无操作。
func (s *WorkerSlave) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// GetState 返回当前状态。
func (s *WorkerSlave) GetState() State {
	return s.state.Load().(State)
}

// TasksProcessed 返回已成功处理的任务数。
func (s *WorkerSlave) TasksProcessed() int64 {
	return s.processed.Load()
}
