// Package reporter 将聚合结果渲染为控制台表格、CSV 或 JSON。
package reporter
