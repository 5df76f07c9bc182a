// Copyright (c) tenex Authors.
// Licensed under the MIT License.

/*
Package migration 管理 SQL 会话存储的版本化表结构，基于 golang-migrate。

conversation_teams 与 conversation_messages 的 PostgreSQL、MySQL 迁移
通过 embed.FS 内嵌在二进制中。SQLite 不走迁移，表由存储层启动时
AutoMigrate 创建。

  - Migrator / DefaultMigrator：Up、Down、Steps、Goto、Force、Status 等操作，
    ctx 取消时在当前迁移结束后停止。
  - NewMigratorFromDatabaseConfig：从存储配置创建迁移器。
  - CLI：tenex migrate 子命令的输出层。
*/
package migration
