// Package cmd 提供 freq-engine CLI 的命令实现
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/freq-engine/internal/config"
	"yqhp/freq-engine/pkg/logger"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是启动时显示的 ASCII 艺术
	Banner = `
    ___                     |‾‾| Freq Engine %s
   / __\ __ ___  __ _       |  |
  / _\| '__/ _ \/ _' |      |  |
 / /  | | |  __/ (_| |      |  |
 \/   |_|  \___|\__, |      |__|
                   |_|
`
)

var (
	// 全局配置
	cfgFile string
	debug   bool
	quiet   bool
)

// rootCmd 是根命令
var rootCmd = &cobra.Command{
	Use:   "freq-engine",
	Short: "分布式关键词频率统计引擎",
	Long: `freq-engine 是一个分布式关键词频率统计引擎。
Master 接收客户端提交的文档集，轮询分发给已连接的 Slave 计数，
再把各 Slave 的结果汇总为关键词 x 文件的百分比矩阵返回给客户端。`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// 全局 flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "静默模式")

	// 禁用默认的 completion 命令
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// 自定义版本模板
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig 按 默认值 < 配置文件 < 环境变量 < 命令行 的顺序加载并校验配置。
// overrides 的 key 是配置的点路径，例如 "master.task_timeout"。
func loadConfig(overrides map[string]string) (*config.Config, error) {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader = loader.WithConfigPath(cfgFile)
	}
	if debug {
		if overrides == nil {
			overrides = make(map[string]string)
		}
		overrides["logging.level"] = "debug"
	}
	loader = loader.WithCmdArgs(overrides)

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger 根据配置创建日志实例。quiet 模式下只输出警告及以上级别。
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logCfg := cfg.Logging
	if quiet && !debug {
		logCfg.Level = "warn"
	}
	log, err := logger.New(&logCfg)
	if err != nil {
		return nil, fmt.Errorf("创建日志失败: %w", err)
	}
	return log, nil
}

// changedFlags 把用户显式设置过的 flag 映射到配置点路径。
func changedFlags(cmd *cobra.Command, mapping map[string]string) map[string]string {
	overrides := make(map[string]string)
	for flag, path := range mapping {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			overrides[path] = f.Value.String()
		}
	}
	return overrides
}
