// Package voice 提供语音反馈触发逻辑
//
// 状态机：评分划分为 good/fair/poor 三档，进入新档位后需等待
// 门控延迟才允许首次播报，播报后抑制到档位再次变化为止。
// 独立于档位逻辑，任意两次播报之间强制 3 秒最小间隔，
// 间隔内的播报请求直接丢弃，不排队。
package voice

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Bucket 姿态质量档位
type Bucket string

const (
	BucketGood Bucket = "good"
	BucketFair Bucket = "fair"
	BucketPoor Bucket = "poor"
)

// Frequency 播报频率设置
type Frequency string

const (
	FrequencyLow    Frequency = "low"
	FrequencyMedium Frequency = "medium"
	FrequencyHigh   Frequency = "high"
)

// 档位边界
const (
	goodThreshold = 70.0
	fairThreshold = 45.0
)

const (
	// minSpeechGap 任意两次播报的全局最小间隔
	minSpeechGap = 3 * time.Second

	// 紧急覆盖条件：评分跌破 emergencyScore 且在档时间超过 emergencyAfter
	emergencyScore = 30.0
	emergencyAfter = 3 * time.Second

	// emergencyPoorStreak 连续 poor 播报达到该数量后允许再次紧急覆盖（防刷屏安全阀）
	emergencyPoorStreak = 3
)

// gateDelays 各频率设置的首次播报门控延迟
var gateDelays = map[Frequency]time.Duration{
	FrequencyLow:    10 * time.Second,
	FrequencyMedium: 7 * time.Second,
	FrequencyHigh:   5 * time.Second,
}

// Speaker 语音合成外部服务
//
// 控制器是唯一调用方。播报失败只记日志，不重试。
type Speaker interface {
	Speak(ctx context.Context, utterance Utterance) error
}

// Controller 语音反馈控制器
//
// 状态仅由本控制器持有和修改（VoiceFeedbackState），会话开始时重置。
type Controller struct {
	mu      sync.Mutex
	speaker Speaker
	logger  *zap.Logger

	gateDelay time.Duration

	bucket                     Bucket
	prevBucket                 Bucket
	bucketEnteredAt            time.Time
	hasSpokenForBucket         bool
	consecutivePoorSpeechCount int
	lastSpeechAt               time.Time
	speaking                   bool
	variantSeq                 int
}

// NewController 创建语音反馈控制器
func NewController(speaker Speaker, frequency Frequency, logger *zap.Logger) *Controller {
	gateDelay, ok := gateDelays[frequency]
	if !ok {
		gateDelay = gateDelays[FrequencyMedium]
	}
	return &Controller{
		speaker:   speaker,
		logger:    logger,
		gateDelay: gateDelay,
	}
}

// Reset 重置状态（新会话开始时调用）
func (c *Controller) Reset(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bucket = ""
	c.prevBucket = ""
	c.bucketEnteredAt = now
	c.hasSpokenForBucket = false
	c.consecutivePoorSpeechCount = 0
	c.lastSpeechAt = time.Time{}
	c.speaking = false
}

// Speaking 返回当前是否正在播报
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// BucketFor 评分所属档位（边界 70 / 45）
func BucketFor(score float64) Bucket {
	switch {
	case score >= goodThreshold:
		return BucketGood
	case score >= fairThreshold:
		return BucketFair
	default:
		return BucketPoor
	}
}

// Process 处理一帧评分，必要时触发播报
//
// 返回本次触发的消息（未触发时为 nil），便于上层记录。
func (c *Controller) Process(ctx context.Context, score float64, now time.Time) *Utterance {
	c.mu.Lock()

	bucket := BucketFor(score)
	if bucket != c.bucket {
		// 进入新档位：重置进入时间与播报标记
		c.prevBucket = c.bucket
		c.bucket = bucket
		c.bucketEnteredAt = now
		c.hasSpokenForBucket = false
	}

	utterance := c.evaluateLocked(score, now)
	c.mu.Unlock()

	if utterance == nil {
		return nil
	}

	c.dispatch(ctx, *utterance)
	return utterance
}

// evaluateLocked 触发判定（需持锁调用），命中时更新状态并返回消息
func (c *Controller) evaluateLocked(score float64, now time.Time) *Utterance {
	timeInBucket := now.Sub(c.bucketEnteredAt)

	// 紧急覆盖：绕过正常门控，但仍受全局最小间隔约束
	if score < emergencyScore && timeInBucket > emergencyAfter {
		allowed := !c.hasSpokenForBucket || c.consecutivePoorSpeechCount >= emergencyPoorStreak
		if allowed && c.spacingOKLocked(now) {
			c.hasSpokenForBucket = true
			c.consecutivePoorSpeechCount = 0
			c.lastSpeechAt = now
			msg := pickMessage(CategoryCritical, c.variantSeq)
			c.variantSeq++
			return &msg
		}
	}

	// 正常门控：在档时间达到门控延迟后允许首次播报
	if c.hasSpokenForBucket || timeInBucket < c.gateDelay {
		return nil
	}
	if !c.spacingOKLocked(now) {
		// 间隔不足：丢弃，不排队
		return nil
	}

	category := c.selectCategoryLocked()
	c.hasSpokenForBucket = true
	c.lastSpeechAt = now

	switch c.bucket {
	case BucketPoor:
		c.consecutivePoorSpeechCount++
	case BucketGood:
		c.consecutivePoorSpeechCount = 0
	}

	msg := pickMessage(category, c.variantSeq)
	c.variantSeq++
	return &msg
}

// selectCategoryLocked 按档位与来源档位选择消息类别
func (c *Controller) selectCategoryLocked() Category {
	switch c.bucket {
	case BucketGood:
		return CategoryPraise
	case BucketFair:
		if c.prevBucket == BucketPoor {
			return CategoryEncouragement
		}
		return CategoryAdjustment
	default:
		return CategoryWarning
	}
}

// spacingOKLocked 全局最小播报间隔检查
func (c *Controller) spacingOKLocked(now time.Time) bool {
	if c.lastSpeechAt.IsZero() {
		return true
	}
	return now.Sub(c.lastSpeechAt) >= minSpeechGap
}

// dispatch 调用语音合成服务
//
// 失败只记日志并清除播报标志，不重试。
func (c *Controller) dispatch(ctx context.Context, utterance Utterance) {
	c.mu.Lock()
	c.speaking = true
	c.mu.Unlock()

	err := c.speaker.Speak(ctx, utterance)

	c.mu.Lock()
	c.speaking = false
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("Failed to speak feedback message",
			zap.String("category", string(utterance.Category)),
			zap.Error(err),
		)
	}
}
