package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/freq-engine/api/rest"
	restclient "yqhp/freq-engine/api/rest/client"
	"yqhp/freq-engine/internal/config"
	"yqhp/freq-engine/internal/master"
	"yqhp/freq-engine/pkg/types"
)

var (
	// master start 命令的 flags
	masterClientAddress string
	masterSlaveAddress  string
	masterStatusAddress string
	masterTaskTimeout   time.Duration

	// master status 命令的 flags
	masterStatusURL     string
	masterStatusTimeout time.Duration
)

// masterCmd 是 master 子命令
var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "管理 Master 节点",
	Long:  `Master 节点负责接收作业、分发任务和汇总结果。`,
}

// masterStartCmd 是 master start 子命令
var masterStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动 Master 节点",
	Long: `启动 Master 节点，开始接受 Slave 连接和客户端作业。

Master 节点同时监听两个端口：
  - 客户端端口：每个连接提交一个作业并接收一个结果矩阵
  - Slave 端口：Slave 连接后注册并等待任务
另外可选地提供只读的状态 API。`,
	Example: `  # 使用默认配置启动
  freq-engine master start

  # 指定监听地址
  freq-engine master start --client-address :6000 --slave-address :6001

  # 关闭状态 API
  freq-engine master start --status-address ""

  # 使用配置文件
  freq-engine master start --config config.yaml`,
	RunE: runMasterStart,
}

// masterStatusCmd 是 master status 子命令
var masterStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "查看 Master 节点状态",
	Long:  `通过状态 API 查看 Master 节点的健康状态、已连接的 Slave 和分发统计。`,
	Example: `  freq-engine master status
  freq-engine master status --address http://localhost:9090`,
	RunE: runMasterStatus,
}

func init() {
	rootCmd.AddCommand(masterCmd)
	masterCmd.AddCommand(masterStartCmd)
	masterCmd.AddCommand(masterStatusCmd)

	// master start flags
	defaults := config.DefaultConfig().Master
	masterStartCmd.Flags().StringVar(&masterClientAddress, "client-address", defaults.ClientAddress, "客户端监听地址")
	masterStartCmd.Flags().StringVar(&masterSlaveAddress, "slave-address", defaults.SlaveAddress, "Slave 监听地址")
	masterStartCmd.Flags().StringVar(&masterStatusAddress, "status-address", defaults.StatusAddress, "状态 API 地址，留空则关闭")
	masterStartCmd.Flags().DurationVar(&masterTaskTimeout, "task-timeout", defaults.TaskTimeout, "单个任务的超时时间")

	// master status flags
	masterStatusCmd.Flags().StringVar(&masterStatusURL, "address", "http://localhost:8080", "状态 API 地址")
	masterStatusCmd.Flags().DurationVar(&masterStatusTimeout, "timeout", 5*time.Second, "请求超时时间")
}

func runMasterStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(changedFlags(cmd, map[string]string{
		"client-address": "master.client_address",
		"slave-address":  "master.slave_address",
		"status-address": "master.status_address",
		"task-timeout":   "master.task_timeout",
	}))
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	m := master.NewMaster(&master.Config{
		ClientAddress:    cfg.Master.ClientAddress,
		SlaveAddress:     cfg.Master.SlaveAddress,
		TaskTimeout:      cfg.Master.TaskTimeout,
		LivenessInterval: cfg.Master.LivenessInterval,
		AcceptBackoff:    cfg.Master.AcceptBackoff,
	}, log)

	// 处理关闭信号
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 打印启动信息
	out := cmd.OutOrStdout()
	if !quiet {
		fmt.Fprintf(out, Banner, Version)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  正在启动 Master 节点...\n")
		fmt.Fprintf(out, "  客户端地址: %s\n", cfg.Master.ClientAddress)
		fmt.Fprintf(out, "  Slave 地址: %s\n", cfg.Master.SlaveAddress)
		fmt.Fprintf(out, "  任务超时: %s\n", cfg.Master.TaskTimeout)
		fmt.Fprintln(out)
	}

	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("启动 Master 失败: %w", err)
	}

	var server *rest.Server
	if cfg.Master.StatusAddress != "" {
		ln, err := net.Listen("tcp", cfg.Master.StatusAddress)
		if err != nil {
			_ = m.Stop(context.Background())
			return fmt.Errorf("启动状态 API 失败: %w", err)
		}
		server = rest.NewServer(m.Registry(), m.Stats(), rest.DefaultConfig(), log)
		go func() {
			if err := server.Serve(ln); err != nil {
				log.Error("Status API stopped", zap.Error(err))
			}
		}()
	}

	if !quiet {
		fmt.Fprintln(out, "Master 节点启动成功。按 Ctrl+C 停止。")
		events, err := m.Registry().WatchSlaves(ctx)
		if err != nil {
			return err
		}
		go printSlaveEvents(out, events)
	}

	// 等待上下文取消
	<-ctx.Done()
	if !quiet {
		fmt.Fprintln(out, "\n正在关闭 Master...")
	}

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if server != nil {
		if err := server.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Warn("Status API shutdown failed", zap.Error(err))
		}
	}
	if err := m.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("停止 Master 失败: %w", err)
	}

	if !quiet {
		fmt.Fprintln(out, "Master 节点已停止。")
	}
	return nil
}

// printSlaveEvents 打印 Slave 的连接和断开，直到 events 被关闭。
func printSlaveEvents(out io.Writer, events <-chan *types.SlaveEvent) {
	for ev := range events {
		switch ev.Type {
		case types.SlaveEventRegistered:
			fmt.Fprintf(out, "  Slave #%d 已连接: %s\n", ev.SlaveID, ev.Slave.Address)
		case types.SlaveEventUnregistered:
			fmt.Fprintf(out, "  Slave #%d 已断开: %s\n", ev.SlaveID, ev.Slave.Address)
		}
	}
}

func runMasterStatus(cmd *cobra.Command, args []string) error {
	c := restclient.New(masterStatusURL, masterStatusTimeout)
	defer c.Close()

	health, err := c.Health()
	if err != nil {
		return fmt.Errorf("无法连接 Master 状态 API: %w", err)
	}
	slaves, err := c.Slaves()
	if err != nil {
		return err
	}
	stats, err := c.Stats()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Master 状态: %s (%s)\n", health.Status, health.Timestamp)
	fmt.Fprintf(out, "已连接 Slave: %d\n\n", slaves.Total)

	if slaves.Total > 0 {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tADDRESS\tSTATE\tCONNECTED")
		for _, s := range slaves.Slaves {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.Address, s.State, s.ConnectedAt)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "分发统计:")
	fmt.Fprintf(out, "  作业: %d (无 Slave: %d)\n", stats.JobsHandled, stats.JobsWithoutSlaves)
	fmt.Fprintf(out, "  任务: %d (失败: %d, 超时: %d)\n", stats.TasksDispatched, stats.TasksFailed, stats.TasksTimedOut)
	fmt.Fprintf(out, "  延迟 ms: p50=%.2f p95=%.2f p99=%.2f max=%.2f mean=%.2f\n",
		stats.LatencyP50Ms, stats.LatencyP95Ms, stats.LatencyP99Ms, stats.LatencyMaxMs, stats.LatencyMeanMs)
	return nil
}
