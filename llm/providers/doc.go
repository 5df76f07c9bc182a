// Package providers 收纳 OpenAI 兼容协议的线上类型与错误映射，
// 具体 Provider 实现位于子包（openaicompat）。
package providers
