package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/duke-git/lancet/v2/maputil"
	"github.com/duke-git/lancet/v2/slice"

	"yqhp/freq-engine/pkg/types"
)

// Format 定义输出格式。
type Format string

const (
	// FormatTable 输出对齐的控制台表格。
	FormatTable Format = "table"
	// FormatCSV 输出 CSV。
	FormatCSV Format = "csv"
	// FormatJSON 输出缩进的 JSON。
	FormatJSON Format = "json"
)

// keywordHeader 是第一列的表头。
const keywordHeader = "keyword"

// ParseFormat 解析格式名称，空字符串视为 table。
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

// Render 以指定格式将 result 写入 w。
func Render(w io.Writer, result *types.AggregateResult, format Format) error {
	switch format {
	case "", FormatTable:
		return renderTable(w, result)
	case FormatCSV:
		return renderCSV(w, result)
	case FormatJSON:
		return renderJSON(w, result)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// Columns 返回去重后的文档列，保持首次出现的顺序。
func Columns(result *types.AggregateResult) []string {
	return slice.Unique(result.FileOrder)
}

// Rows 返回关键词行的顺序。缺少 keyword_order 的结果按关键词排序。
func Rows(result *types.AggregateResult) []string {
	if len(result.KeywordOrder) > 0 {
		return result.KeywordOrder
	}
	keys := maputil.Keys(result.Matrix)
	slices.Sort(keys)
	return keys
}

// Round2 将百分比四舍五入到两位小数。
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatCell(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', 2, 64)
}

func matrix(result *types.AggregateResult) [][]string {
	cols := Columns(result)
	rows := make([][]string, 0, len(result.Matrix)+1)

	header := append([]string{keywordHeader}, cols...)
	rows = append(rows, header)

	for _, kw := range Rows(result) {
		row := make([]string, 0, len(cols)+1)
		row = append(row, kw)
		for _, col := range cols {
			row = append(row, formatCell(result.Percentage(kw, col)))
		}
		rows = append(rows, row)
	}
	return rows
}

func renderTable(w io.Writer, result *types.AggregateResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, row := range matrix(result) {
		for j, cell := range row {
			if j > 0 {
				fmt.Fprint(tw, "\t")
			}
			if i > 0 && j > 0 {
				cell += "%"
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	if _, err := fmt.Fprintf(tw, "\n%d file(s), %d keyword(s), %d ms\n",
		len(Columns(result)), len(Rows(result)), result.TotalProcessingMs); err != nil {
		return err
	}
	return tw.Flush()
}

func renderCSV(w io.Writer, result *types.AggregateResult) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(matrix(result)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func renderJSON(w io.Writer, result *types.AggregateResult) error {
	data, err := sonic.ConfigStd.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
