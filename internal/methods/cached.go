package methods

import (
	"context"
	"encoding/json"

	"rpcdispatch/internal/blockparam"
	"rpcdispatch/internal/cache"
)

// Cached decorates a handler so successful results are served from c.
// Calls against a moving block such as "latest" always reach the handler.
func Cached(method string, c cache.Cache) func(Handler) Handler {
	return func(next Handler) Handler {
		return func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
			if blockparam.Dynamic(method, params) {
				return next(ctx, params)
			}

			key := cache.Key(method, params)
			if data, ok := c.Get(key); ok {
				return data, nil
			}

			result, err := next(ctx, params)
			if err != nil {
				return nil, err
			}
			c.Set(key, result)
			return result, nil
		}
	}
}
