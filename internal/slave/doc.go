// Package slave 实现工作节点：连接 Master，逐行接收任务，
// 统计文档中的关键词并逐行返回结果。
package slave
