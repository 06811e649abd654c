package eventlog

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"github.com/BaSui01/teddyvoice/internal/database"
)

// =============================================================================
// 🏭 存储工厂
// =============================================================================

// Config 事件日志配置
type Config struct {
	// Backends 启用的后端：gorm、redis、mongo；为空时不记录
	Backends []string `yaml:"backends" json:"backends" env:"BACKENDS"`
	// Stream Redis Stream 键
	Stream string `yaml:"stream" json:"stream" env:"STREAM"`
	// StreamMaxLen Stream 最大长度，0 表示不裁剪
	StreamMaxLen int64 `yaml:"stream_max_len" json:"stream_max_len" env:"STREAM_MAX_LEN"`
	// MongoCollection MongoDB 集合名
	MongoCollection string `yaml:"mongo_collection" json:"mongo_collection" env:"MONGO_COLLECTION"`
	// Async 异步写入配置
	Async AsyncConfig `yaml:"async" json:"async" env:"ASYNC"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Backends:        []string{"gorm"},
		Stream:          DefaultStream,
		StreamMaxLen:    100000,
		MongoCollection: DefaultMongoCollection,
		Async:           DefaultAsyncConfig(),
	}
}

// Backends 已连接的存储客户端，未配置的留空
type Backends struct {
	DB    *database.PoolManager
	Redis redis.UniversalClient
	Mongo *mongo.Database
}

// Build 按配置组装存储；多个后端时返回 Multi，第一个后端负责查询
func Build(cfg Config, b Backends, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var stores Multi
	for _, name := range cfg.Backends {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "", "none":
			continue
		case "gorm", "sql", "database":
			if b.DB == nil {
				return nil, fmt.Errorf("eventlog backend %q requires a database connection", name)
			}
			stores = append(stores, NewGormStore(b.DB))
		case "redis":
			if b.Redis == nil {
				return nil, fmt.Errorf("eventlog backend %q requires a redis client", name)
			}
			stores = append(stores, NewRedisStore(b.Redis, cfg.Stream, cfg.StreamMaxLen))
		case "mongo", "mongodb":
			if b.Mongo == nil {
				return nil, fmt.Errorf("eventlog backend %q requires a mongo database", name)
			}
			stores = append(stores, NewMongoStore(b.Mongo, cfg.MongoCollection))
		default:
			return nil, fmt.Errorf("unknown eventlog backend %q", name)
		}
	}

	switch len(stores) {
	case 0:
		logger.Info("event log disabled")
		return Nop{}, nil
	case 1:
		logger.Info("event log store ready", zap.String("backend", stores[0].Name()))
		return stores[0], nil
	default:
		names := make([]string, len(stores))
		for i, s := range stores {
			names[i] = s.Name()
		}
		logger.Info("event log stores ready", zap.Strings("backends", names))
		return stores, nil
	}
}
