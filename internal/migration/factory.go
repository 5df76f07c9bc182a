package migration

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/tenex/internal/database"
)

// NewMigratorFromDatabaseConfig 用存储层的数据库配置创建迁移器
func NewMigratorFromDatabaseConfig(dbCfg database.Config, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	if dbType == DatabaseTypeSQLite {
		return nil, ErrSQLiteUnsupported
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  databaseURL(dbType, dbCfg),
		Logger:       logger,
	})
}

// NewMigratorFromURL 用显式连接串创建迁移器
func NewMigratorFromURL(dbType, dbURL string, logger *zap.Logger) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		Logger:       logger,
	})
}

// databaseURL 优先使用配置中的 DSN。MySQL 的迁移文件含多条语句，需要 multiStatements。
func databaseURL(dbType DatabaseType, c database.Config) string {
	if c.DSN == "" {
		return BuildDatabaseURL(dbType, c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode)
	}
	if dbType == DatabaseTypeMySQL && !strings.Contains(c.DSN, "multiStatements=") {
		sep := "?"
		if strings.Contains(c.DSN, "?") {
			sep = "&"
		}
		return c.DSN + sep + "multiStatements=true"
	}
	return c.DSN
}
