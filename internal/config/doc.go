// Package config 提供 freq-engine 主节点、从节点和客户端的配置管理。
// 支持从 YAML 文件、环境变量 (FE_*) 和命令行参数加载配置，
// 优先级顺序为：默认值 < YAML 文件 < 环境变量 < 命令行参数。
package config
