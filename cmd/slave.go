package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"yqhp/freq-engine/internal/config"
	"yqhp/freq-engine/internal/slave"
)

var (
	// slave start 命令的 flags
	slaveMasterAddr  string
	slaveDialTimeout time.Duration
)

// slaveCmd 是 slave 子命令
var slaveCmd = &cobra.Command{
	Use:   "slave",
	Short: "管理 Slave 节点",
	Long:  `Slave 节点连接 Master，接收单个文档的计数任务并返回关键词出现次数。`,
}

// slaveStartCmd 是 slave start 子命令
var slaveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动 Slave 节点",
	Long: `启动 Slave 节点并连接到 Master 的 Slave 端口。

Slave 依次处理收到的任务，每个任务回复一行结果。
Master 关闭连接或收到 Ctrl+C 时退出，不会自动重连。`,
	Example: `  # 连接本机 Master
  freq-engine slave start

  # 指定 Master 地址
  freq-engine slave start --master 192.168.1.10:5001`,
	RunE: runSlaveStart,
}

func init() {
	rootCmd.AddCommand(slaveCmd)
	slaveCmd.AddCommand(slaveStartCmd)

	defaults := config.DefaultConfig().Slave
	slaveStartCmd.Flags().StringVar(&slaveMasterAddr, "master", defaults.MasterAddr, "Master 节点的 Slave 端口地址")
	slaveStartCmd.Flags().DurationVar(&slaveDialTimeout, "dial-timeout", defaults.DialTimeout, "连接 Master 的超时时间")
}

func runSlaveStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(changedFlags(cmd, map[string]string{
		"master":       "slave.master_addr",
		"dial-timeout": "slave.dial_timeout",
	}))
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	s := slave.NewWorkerSlave(&slave.Config{
		MasterAddress: cfg.Slave.MasterAddr,
		DialTimeout:   cfg.Slave.DialTimeout,
	}, log)

	// 处理关闭信号
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if !quiet {
		fmt.Fprintf(out, Banner, Version)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  正在启动 Slave 节点...\n")
		fmt.Fprintf(out, "  Master 地址: %s\n", cfg.Slave.MasterAddr)
		fmt.Fprintln(out)
	}

	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("Slave 运行失败: %w", err)
	}

	if !quiet {
		fmt.Fprintf(out, "Slave 节点已停止，共处理 %d 个任务。\n", s.TasksProcessed())
	}
	return nil
}
