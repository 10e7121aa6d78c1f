package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSpeaker 记录播报内容的测试 Speaker
type fakeSpeaker struct {
	utterances []Utterance
	err        error
}

func (s *fakeSpeaker) Speak(ctx context.Context, utterance Utterance) error {
	s.utterances = append(s.utterances, utterance)
	return s.err
}

func newTestController(frequency Frequency) (*Controller, *fakeSpeaker) {
	speaker := &fakeSpeaker{}
	return NewController(speaker, frequency, zap.NewNop()), speaker
}

func TestBucketFor_Thresholds(t *testing.T) {
	assert.Equal(t, BucketGood, BucketFor(70))
	assert.Equal(t, BucketGood, BucketFor(100))
	assert.Equal(t, BucketFair, BucketFor(69))
	assert.Equal(t, BucketFair, BucketFor(45))
	assert.Equal(t, BucketPoor, BucketFor(44))
	assert.Equal(t, BucketPoor, BucketFor(0))
}

func TestProcess_GateDelayBeforeFirstMessage(t *testing.T) {
	// 高频（5秒门控）下，poor 档首条消息在进入档位满 5 秒时触发，不会提前
	ctrl, speaker := newTestController(FrequencyHigh)
	ctx := context.Background()
	start := time.Now()

	// 先保持 good 档 3 秒（使用 40 分避开紧急覆盖阈值 30）
	for i := 0; i < 3; i++ {
		ctrl.Process(ctx, 80, start.Add(time.Duration(i)*time.Second))
	}

	var firedAt time.Duration
	for i := 3; i <= 10; i++ {
		now := start.Add(time.Duration(i) * time.Second)
		if msg := ctrl.Process(ctx, 40, now); msg != nil {
			firedAt = now.Sub(start.Add(3 * time.Second))
			break
		}
	}

	require.Len(t, speaker.utterances, 1)
	assert.Equal(t, 5*time.Second, firedAt)
	assert.Equal(t, CategoryWarning, speaker.utterances[0].Category)
}

func TestProcess_SuppressedAfterFirstMessage(t *testing.T) {
	ctrl, speaker := newTestController(FrequencyHigh)
	ctx := context.Background()
	start := time.Now()

	// 在 poor 档内持续 20 秒，只允许一条消息
	for i := 0; i <= 20; i++ {
		ctrl.Process(ctx, 40, start.Add(time.Duration(i)*time.Second))
	}

	assert.Len(t, speaker.utterances, 1)
}

func TestProcess_GlobalMinimumSpacing(t *testing.T) {
	// 任意输入序列下，两次播报间隔不小于 3 秒
	ctrl, speaker := newTestController(FrequencyHigh)
	ctx := context.Background()
	start := time.Now()

	scores := []float64{80, 80, 40, 40, 40, 40, 40, 80, 40, 80, 40, 20, 20, 20, 20, 20, 80, 80}
	var spokenAt []time.Time
	for i, score := range scores {
		now := start.Add(time.Duration(i) * 500 * time.Millisecond)
		if msg := ctrl.Process(ctx, score, now); msg != nil {
			spokenAt = append(spokenAt, now)
		}
	}

	require.Equal(t, len(speaker.utterances), len(spokenAt))
	for i := 1; i < len(spokenAt); i++ {
		assert.GreaterOrEqual(t, spokenAt[i].Sub(spokenAt[i-1]), minSpeechGap)
	}
}

func TestProcess_EmergencyOverrideBypassesGate(t *testing.T) {
	// 低频（10秒门控）下，评分 <30 且在档超过 3 秒时紧急消息提前触发
	ctrl, speaker := newTestController(FrequencyLow)
	ctx := context.Background()
	start := time.Now()

	var firedAt time.Duration
	for i := 0; i <= 10; i++ {
		now := start.Add(time.Duration(i) * time.Second)
		if msg := ctrl.Process(ctx, 20, now); msg != nil {
			firedAt = time.Duration(i) * time.Second
			break
		}
	}

	require.Len(t, speaker.utterances, 1)
	assert.Equal(t, CategoryCritical, speaker.utterances[0].Category)
	// 超过 3 秒即触发，远早于 10 秒门控
	assert.Equal(t, 4*time.Second, firedAt)
}

func TestProcess_EmergencyAtMostOncePerBucket(t *testing.T) {
	ctrl, speaker := newTestController(FrequencyLow)
	ctx := context.Background()
	start := time.Now()

	// 持续 poor：紧急消息触发后 hasSpokenForBucket 抑制后续播报
	for i := 0; i <= 30; i++ {
		ctrl.Process(ctx, 20, start.Add(time.Duration(i)*time.Second))
	}

	assert.Len(t, speaker.utterances, 1)
}

func TestProcess_PoorFairTransitionEmitsEncouragement(t *testing.T) {
	ctrl, speaker := newTestController(FrequencyHigh)
	ctx := context.Background()
	start := time.Now()

	// 进入 poor 并播报
	now := start
	for i := 0; i <= 6; i++ {
		now = start.Add(time.Duration(i) * time.Second)
		ctrl.Process(ctx, 40, now)
	}
	require.Len(t, speaker.utterances, 1)
	require.Equal(t, CategoryWarning, speaker.utterances[0].Category)

	// 回到 fair：门控后播报鼓励消息
	for i := 7; i <= 13; i++ {
		now = start.Add(time.Duration(i) * time.Second)
		ctrl.Process(ctx, 60, now)
	}
	require.Len(t, speaker.utterances, 2)
	assert.Equal(t, CategoryEncouragement, speaker.utterances[1].Category)
}

func TestProcess_FairFromGoodEmitsAdjustment(t *testing.T) {
	ctrl, speaker := newTestController(FrequencyHigh)
	ctx := context.Background()
	start := time.Now()

	now := start
	for i := 0; i <= 2; i++ {
		now = start.Add(time.Duration(i) * time.Second)
		ctrl.Process(ctx, 80, now)
	}
	for i := 3; i <= 10; i++ {
		now = start.Add(time.Duration(i) * time.Second)
		ctrl.Process(ctx, 60, now)
	}

	require.NotEmpty(t, speaker.utterances)
	assert.Equal(t, CategoryAdjustment, speaker.utterances[0].Category)
}

func TestProcess_GoodEmitsPraiseAndResetsPoorCounter(t *testing.T) {
	ctrl, speaker := newTestController(FrequencyHigh)
	ctx := context.Background()
	start := time.Now()

	// poor 档播报一次（计数 +1）
	now := start
	for i := 0; i <= 6; i++ {
		now = start.Add(time.Duration(i) * time.Second)
		ctrl.Process(ctx, 40, now)
	}
	require.Len(t, speaker.utterances, 1)
	assert.Equal(t, 1, ctrl.consecutivePoorSpeechCount)

	// 回到 good：播报称赞，计数清零
	for i := 7; i <= 14; i++ {
		now = start.Add(time.Duration(i) * time.Second)
		ctrl.Process(ctx, 85, now)
	}
	require.Len(t, speaker.utterances, 2)
	assert.Equal(t, CategoryPraise, speaker.utterances[1].Category)
	assert.Equal(t, 0, ctrl.consecutivePoorSpeechCount)
}

func TestProcess_SpeakErrorClearsSpeakingFlag(t *testing.T) {
	speaker := &fakeSpeaker{err: errors.New("tts unavailable")}
	ctrl := NewController(speaker, FrequencyHigh, zap.NewNop())
	ctx := context.Background()
	start := time.Now()

	for i := 0; i <= 6; i++ {
		ctrl.Process(ctx, 40, start.Add(time.Duration(i)*time.Second))
	}

	require.Len(t, speaker.utterances, 1)
	assert.False(t, ctrl.Speaking())
}

func TestReset_ClearsState(t *testing.T) {
	ctrl, speaker := newTestController(FrequencyHigh)
	ctx := context.Background()
	start := time.Now()

	for i := 0; i <= 6; i++ {
		ctrl.Process(ctx, 40, start.Add(time.Duration(i)*time.Second))
	}
	require.Len(t, speaker.utterances, 1)

	ctrl.Reset(start.Add(20 * time.Second))

	assert.Equal(t, Bucket(""), ctrl.bucket)
	assert.Equal(t, 0, ctrl.consecutivePoorSpeechCount)
	assert.False(t, ctrl.hasSpokenForBucket)
	assert.True(t, ctrl.lastSpeechAt.IsZero())
}
