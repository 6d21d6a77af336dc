package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/ctxutil"
	"github.com/Spok95/lms-recordings/internal/metrics"
)

type SubscriptionExpirer interface {
	ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Sweeper interface {
	Sweep(olderThan time.Duration) int
}

// ExpireSubscriptions переводит истёкшие подписки в expired.
// Доступ и так смотрит на expires_at, задача нужна для честных списков.
func ExpireSubscriptions(store SubscriptionExpirer, log *zap.Logger) Job {
	return func(ctx context.Context) error {
		ctx, cancel := ctxutil.WithDBTimeout(ctx)
		defer cancel()
		n, err := store.ExpireSubscriptions(ctx, time.Now())
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("subscriptions expired", zap.Int64("count", n))
		}
		return nil
	}
}

func SweepUploadProgress(reg Sweeper, ttl time.Duration) Job {
	return func(context.Context) error {
		reg.Sweep(ttl)
		return nil
	}
}

func DBPing(store Pinger) Job {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		start := time.Now()
		err := store.Ping(ctx)
		metrics.ObserveDBPing(time.Since(start))
		return err
	}
}
