package eventlog

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// 🗃️ 存储接口
// =============================================================================

// Store 事件日志存储后端
type Store interface {
	// Name 后端名称，用于日志与指标
	Name() string
	// Append 批量写入记录
	Append(ctx context.Context, events ...TurnEvent) error
	// List 按 StartedAt 倒序返回匹配的记录
	List(ctx context.Context, q Query) ([]TurnEvent, error)
	// Close 释放存储自身持有的资源（共享的连接由调用方关闭）
	Close() error
}

// Nop 丢弃所有写入
type Nop struct{}

func (Nop) Name() string                                     { return "nop" }
func (Nop) Append(context.Context, ...TurnEvent) error       { return nil }
func (Nop) List(context.Context, Query) ([]TurnEvent, error) { return nil, nil }
func (Nop) Close() error                                     { return nil }

// Multi 把写入扇出到多个后端；读取只走第一个后端
type Multi []Store

// Name 实现 Store
func (m Multi) Name() string { return "multi" }

// Append 写入所有后端，汇总失败
func (m Multi) Append(ctx context.Context, events ...TurnEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, events...); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// List 从第一个后端读取
func (m Multi) List(ctx context.Context, q Query) ([]TurnEvent, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].List(ctx, q)
}

// Close 关闭所有后端
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
