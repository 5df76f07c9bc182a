// Package factory 按配置创建 llm.Provider，并为重复的配置复用同一实例。
// 放在独立子包中以避免 llm 与各 provider 子包之间的循环依赖。
package factory
