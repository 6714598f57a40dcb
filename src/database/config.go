package database

import (
	"context"
	"fmt"

	"github.com/xpwu/go-config/configs"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string `json:"driver"`         // postgres / sqlite / memory
	Host         string `json:"host"`           // 数据库主机地址
	Port         string `json:"port"`           // 数据库端口
	User         string `json:"user"`           // 数据库用户名
	Password     string `json:"password"`       // 数据库密码
	DBName       string `json:"dbname"`         // 数据库名称
	SSLMode      string `json:"sslmode"`        // SSL模式
	MaxOpenConns int    `json:"max_open_conns"` // 最大连接数
	MaxIdleConns int    `json:"max_idle_conns"` // 最大空闲连接数
	SQLitePath   string `json:"sqlite_path"`    // SQLite 文件路径
	Migrate      bool   `json:"migrate"`        // 启动时建表（PostgreSQL）
}

// GlobalDatabaseConfig 全局数据库配置实例
var GlobalDatabaseConfig = DatabaseConfig{
	Driver:       "sqlite",
	Host:         "localhost",
	Port:         "5432",
	User:         "equitybot",
	Password:     "",
	DBName:       "equitybot",
	SSLMode:      "disable",
	MaxOpenConns: 25,
	MaxIdleConns: 5,
	SQLitePath:   "equitybot.db",
	Migrate:      true,
}

func init() {
	configs.Unmarshal(&GlobalDatabaseConfig)
}

// Open 按驱动打开存储
func Open(ctx context.Context, config DatabaseConfig) (Store, error) {
	switch config.Driver {
	case "postgres":
		s, err := NewPostgresStore(config)
		if err != nil {
			return nil, err
		}
		if config.Migrate {
			if err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, err
			}
		}
		return s, nil
	case "sqlite", "":
		return NewSQLiteStore(ctx, config.SQLitePath)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}
}
