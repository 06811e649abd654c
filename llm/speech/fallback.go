package speech

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// NamedDialer 带名字的拨号器，用于日志
type NamedDialer struct {
	Name   string
	Dialer StreamDialer
}

// FallbackDialer 按顺序尝试多个合成服务，返回第一个成功建立的连接。
// 全部失败时的错误由调用方的重连退避统一处理。
type FallbackDialer struct {
	dialers []NamedDialer
	logger  *zap.Logger
}

// NewFallbackDialer 创建合成服务链，第一个为主服务
func NewFallbackDialer(logger *zap.Logger, dialers ...NamedDialer) *FallbackDialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackDialer{
		dialers: dialers,
		logger:  logger.With(zap.String("component", "synthesis_fallback")),
	}
}

// Dial 实现 StreamDialer
func (d *FallbackDialer) Dial(ctx context.Context, cfg StreamConfig) (SynthesisStream, error) {
	if len(d.dialers) == 0 {
		return nil, errors.New("no synthesis dialer configured")
	}

	var errs []error
	for i, nd := range d.dialers {
		stream, err := nd.Dialer.Dial(ctx, cfg)
		if err == nil {
			if i > 0 {
				d.logger.Warn("synthesis running on fallback provider", zap.String("provider", nd.Name))
			}
			return stream, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		d.logger.Warn("synthesis provider unavailable",
			zap.String("provider", nd.Name),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", nd.Name, err))
	}
	return nil, errors.Join(errs...)
}
