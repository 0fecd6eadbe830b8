package cache

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// guard runs fn and converts a panic inside the cache layer into a logged
// fault. Callers treat a false return as a miss.
func guard(logger *zap.Logger, name, op string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			cacheFaults.WithLabelValues(name, op).Inc()
			logger.Warn("cache fault treated as miss",
				zap.String("cache", name),
				zap.String("op", op),
				zap.String("fault", fmt.Sprint(r)),
			)
			ok = false
		}
	}()
	fn()
	return true
}

// jsonSizer estimates a value's footprint by its JSON encoding. Values that
// fail to encode count as zero bytes.
func jsonSizer[V any](logger *zap.Logger, name string) func(V) int64 {
	return func(v V) int64 {
		b, err := json.Marshal(v)
		if err != nil {
			logger.Debug("size estimate failed", zap.String("cache", name), zap.Error(err))
			return 0
		}
		return int64(len(b))
	}
}

func storeOptions[V any](logger *zap.Logger, name string, extra []StoreOption[V]) []StoreOption[V] {
	opts := []StoreOption[V]{WithLogger[V](logger), WithSizer(jsonSizer[V](logger, name))}
	return append(opts, extra...)
}
