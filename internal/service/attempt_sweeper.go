package service

import (
	"collabhub_backend/pkg/logger"
	"context"
	"time"

	"go.uber.org/zap"
)

// AttemptSweeper 定时终结超时的尝试、释放长期未开始的尝试
type AttemptSweeper struct {
	Attempts *AttemptService
	Interval time.Duration
}

func NewAttemptSweeper(attempts *AttemptService, interval time.Duration) *AttemptSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &AttemptSweeper{Attempts: attempts, Interval: interval}
}

// Run 启动时先扫一次，之后按 Interval 执行，直到 ctx 取消
func (w *AttemptSweeper) Run(ctx context.Context) {
	log := logger.Named("sweeper")
	log.Info("attempt sweeper started", zap.Duration("interval", w.Interval))
	w.SweepOnce(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("attempt sweeper stopped")
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce 返回本轮过期与放弃的数量
func (w *AttemptSweeper) SweepOnce(ctx context.Context) (expired, abandoned int) {
	log := logger.Named("sweeper")
	expired, err := w.Attempts.ExpireLapsed(ctx)
	if err != nil {
		log.Error("expire lapsed attempts failed", zap.Error(err))
	}
	abandoned, err = w.Attempts.AbandonStale(ctx)
	if err != nil {
		log.Error("abandon stale attempts failed", zap.Error(err))
	}
	if expired > 0 || abandoned > 0 {
		log.Info("attempt sweep finished", zap.Int("expired", expired), zap.Int("abandoned", abandoned))
	}
	return expired, abandoned
}
