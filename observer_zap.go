package cachify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// NewZapObserver logs every operation through a zap logger. Successful ops
// log at debug, store failures at warn, so a production logger at info level
// stays quiet until the backend misbehaves.
func NewZapObserver(logger *zap.Logger) Observer {
	return ObserverFunc(func(_ context.Context, op Op, key string, hit bool, err error, dur time.Duration, driver Driver) {
		fields := []zap.Field{
			zap.String("op", string(op)),
			zap.String("key", key),
			zap.Bool("hit", hit),
			zap.Duration("dur", dur),
			zap.String("driver", string(driver)),
		}
		if err != nil {
			logger.Warn("cachify store error", append(fields, zap.Error(err))...)
			return
		}
		logger.Debug("cachify op", fields...)
	})
}
