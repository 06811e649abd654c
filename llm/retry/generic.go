package retry

import "context"

// DoTyped 是 Retryer.Do 的泛型包装，直接返回结果值。
//
// Usage:
//
//	text, err := retry.DoTyped(ctx, r, func(ctx context.Context) (string, error) {
//	    return provider.Generate(ctx, history, msg)
//	})
func DoTyped[T any](ctx context.Context, r Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
