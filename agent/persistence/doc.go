// Package persistence 提供会话存储：每个会话键对应一个团队与一条只追加的消息记录。
//
// 支持的后端：
//   - memory：开发与测试（默认）
//   - file：单节点部署，团队写 JSON，消息追加 JSONL
//   - redis：多节点部署
//   - sql：postgres / mysql / sqlite（GORM）
package persistence
