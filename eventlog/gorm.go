package eventlog

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/BaSui01/teddyvoice/internal/database"
)

// GormStore 关系型存储（postgres、mysql、sqlite），表结构由迁移维护
type GormStore struct {
	pm         *database.PoolManager
	maxRetries int
	batchSize  int
	ownsPool   bool
}

// GormOption GormStore 选项
type GormOption func(*GormStore)

// WithOwnedPool Close 时一并关闭连接池
func WithOwnedPool() GormOption {
	return func(s *GormStore) { s.ownsPool = true }
}

// WithTransactionRetries 写入事务的最大尝试次数
func WithTransactionRetries(n int) GormOption {
	return func(s *GormStore) { s.maxRetries = n }
}

// NewGormStore 创建关系型存储
func NewGormStore(pm *database.PoolManager, opts ...GormOption) *GormStore {
	s := &GormStore{pm: pm, maxRetries: 3, batchSize: 100}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoMigrate 按模型建表，仅用于测试与本地 sqlite
func (s *GormStore) AutoMigrate() error {
	return s.pm.DB().AutoMigrate(&TurnEvent{})
}

// Name 实现 Store
func (s *GormStore) Name() string { return "gorm" }

// Append 在一个事务内批量插入
func (s *GormStore) Append(ctx context.Context, events ...TurnEvent) error {
	if len(events) == 0 {
		return nil
	}
	err := s.pm.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		return tx.CreateInBatches(events, s.batchSize).Error
	})
	if err != nil {
		return fmt.Errorf("insert turn events: %w", err)
	}
	return nil
}

// List 实现 Store
func (s *GormStore) List(ctx context.Context, q Query) ([]TurnEvent, error) {
	db := s.pm.DB().WithContext(ctx).Model(&TurnEvent{})
	if q.SessionID != "" {
		db = db.Where("session_id = ?", q.SessionID)
	}
	if q.DeviceID != "" {
		db = db.Where("device_id = ?", q.DeviceID)
	}
	if !q.Since.IsZero() {
		db = db.Where("started_at >= ?", q.Since)
	}

	var out []TurnEvent
	if err := db.Order("started_at DESC").Limit(q.limit()).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query turn events: %w", err)
	}
	return out, nil
}

// Close 实现 Store
func (s *GormStore) Close() error {
	if s.ownsPool {
		return s.pm.Close()
	}
	return nil
}
