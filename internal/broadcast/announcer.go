package broadcast

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Announcer 就绪通告器
//
// 周期性发布就绪信封，直到收到确认或尝试次数耗尽。
type Announcer struct {
	channel  *Channel
	interval time.Duration
	maxTries int
	logger   *zap.Logger

	mu        sync.Mutex
	confirmed bool
}

// NewAnnouncer 创建通告器
func NewAnnouncer(channel *Channel, interval time.Duration, maxTries int, logger *zap.Logger) *Announcer {
	return &Announcer{
		channel:  channel,
		interval: interval,
		maxTries: maxTries,
		logger:   logger,
	}
}

// Confirm 标记通告已被对方确认，停止后续重发
func (a *Announcer) Confirm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.confirmed {
		a.confirmed = true
		a.logger.Info("Announce confirmed")
	}
}

// Confirmed 返回是否已确认
func (a *Announcer) Confirmed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.confirmed
}

// Run 发布就绪通告并按间隔重试，直到确认、达到上限或上下文取消
func (a *Announcer) Run(ctx context.Context, envelopeType string) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= a.maxTries; attempt++ {
		if a.Confirmed() {
			return
		}

		if err := a.channel.Publish(ctx, envelopeType); err != nil {
			// 记录错误，但不中断重试
			a.logger.Error("Failed to publish announce", zap.Error(err), zap.Int("attempt", attempt))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	if !a.Confirmed() {
		a.logger.Warn("Announce attempts exhausted without confirmation",
			zap.Int("max_attempts", a.maxTries),
		)
	}
}
