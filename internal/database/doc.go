// Package database 负责打开 GORM 连接（postgres / mysql / 纯 Go sqlite）
// 并管理连接池参数、健康检查与事务重试。
package database
