package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/freq-engine/internal/client"
	"yqhp/freq-engine/internal/config"
	"yqhp/freq-engine/internal/reporter"
	"yqhp/freq-engine/pkg/types"
)

var (
	// submit 命令的 flags
	submitKeywords     string
	submitKeywordsFile string
	submitMasterAddr   string
	submitFormat       string
	submitOutput       string
	submitTimeout      time.Duration
)

// submitCmd 是 submit 子命令
var submitCmd = &cobra.Command{
	Use:   "submit [files...]",
	Short: "提交文档统计关键词频率",
	Long: `把一个或多个文本文件连同关键词列表提交给 Master，
等待 Master 汇总后输出关键词 x 文件的百分比矩阵。

每个百分比表示该关键词在该文件中的出现次数占该文件总词数的比例。`,
	Example: `  # 统计两个文件
  freq-engine submit --keywords "go,rust,zig" a.txt b.txt

  # 从文件读取关键词并输出 CSV
  freq-engine submit --keywords-file keywords.txt --format csv --output result.csv docs/*.txt

  # 输出 JSON
  freq-engine submit -k "go rust" --format json a.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	defaults := config.DefaultConfig().Client
	submitCmd.Flags().StringVarP(&submitKeywords, "keywords", "k", "", "关键词，逗号或空白分隔")
	submitCmd.Flags().StringVar(&submitKeywordsFile, "keywords-file", "", "关键词文件路径")
	submitCmd.Flags().StringVar(&submitMasterAddr, "master", defaults.MasterAddr, "Master 节点的客户端端口地址")
	submitCmd.Flags().StringVarP(&submitFormat, "format", "f", string(reporter.FormatTable), "输出格式 (table, csv, json)")
	submitCmd.Flags().StringVarP(&submitOutput, "output", "o", "", "输出文件路径，默认输出到标准输出")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", defaults.ResponseTimeout, "等待结果的超时时间，0 表示一直等待")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	format, err := reporter.ParseFormat(submitFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(changedFlags(cmd, map[string]string{
		"master":  "client.master_addr",
		"timeout": "client.response_timeout",
	}))
	if err != nil {
		return err
	}

	// 报告写到标准输出，日志改写到标准错误
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	keywords := client.ParseKeywords(submitKeywords)
	if submitKeywordsFile != "" {
		fromFile, err := client.LoadKeywords(submitKeywordsFile)
		if err != nil {
			return err
		}
		keywords = append(keywords, fromFile...)
	}
	if len(keywords) == 0 {
		return errors.New("至少需要一个关键词 (--keywords 或 --keywords-file)")
	}

	job, err := client.LoadJob(args, keywords)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(&client.Config{
		MasterAddress:   cfg.Client.MasterAddr,
		DialTimeout:     cfg.Client.DialTimeout,
		ResponseTimeout: cfg.Client.ResponseTimeout,
	}, log)

	start := time.Now()
	result, err := c.Submit(ctx, job)
	if err != nil {
		return fmt.Errorf("提交作业失败: %w", err)
	}
	log.Debug("Job finished",
		zap.Int("documents", len(job.Documents)),
		zap.Int("keywords", len(job.Keywords)),
		zap.Duration("elapsed", time.Since(start)))

	return writeReport(cmd.OutOrStdout(), result, format)
}

func writeReport(stdout io.Writer, result *types.AggregateResult, format reporter.Format) (err error) {
	w := stdout
	if submitOutput != "" {
		f, cerr := os.Create(submitOutput)
		if cerr != nil {
			return fmt.Errorf("创建输出文件失败: %w", cerr)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	return reporter.Render(w, result, format)
}
