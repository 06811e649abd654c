package migration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	appconfig "github.com/BaSui01/teddyvoice/config"
)

// =============================================================================
// 🏭 迁移器工厂
// =============================================================================

// NewMigratorFromConfig 按应用配置创建迁移器
func NewMigratorFromConfig(cfg *appconfig.Config, logger *zap.Logger) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

// NewMigratorFromDatabaseConfig 按数据库配置创建迁移器；sqlite 时 Name 为文件路径
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	host, port, user, password, sslMode := dbCfg.Host, dbCfg.Port, dbCfg.User, dbCfg.Password, dbCfg.SSLMode
	switch dbType {
	case DatabaseTypeMySQL:
		sslMode = ""
	case DatabaseTypeSQLite:
		host, port, user, password, sslMode = "", 0, "", "", ""
	}
	return NewMigratorFromURL(string(dbType), BuildDatabaseURL(dbType, host, port, dbCfg.Name, user, password, sslMode), logger)
}

// NewMigratorFromURL 按方言名与连接串创建迁移器
func NewMigratorFromURL(dbType, dbURL string, logger *zap.Logger) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    DefaultTable,
		Logger:       logger,
	})
}

// EnsureSchema 把事件日志 Schema 迁移到最新版本并返回迁移摘要，
// 服务启动时在打开连接池之前调用。
func EnsureSchema(ctx context.Context, dbCfg appconfig.DatabaseConfig, logger *zap.Logger) (*MigrationInfo, error) {
	migrator, err := NewMigratorFromDatabaseConfig(dbCfg, logger)
	if err != nil {
		return nil, err
	}
	defer migrator.Close()

	if err := migrator.Up(ctx); err != nil {
		return nil, err
	}
	info, err := migrator.Info(ctx)
	if err != nil {
		return nil, err
	}
	if info.Dirty {
		return info, fmt.Errorf("schema version %d is dirty", info.CurrentVersion)
	}
	return info, nil
}
