package consumer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Marwa-001/neural-stride/internal/config"
	"github.com/Marwa-001/neural-stride/internal/models"
)

// fakeProcessor 记录收到帧的测试处理器
type fakeProcessor struct {
	sessionIDs []string
	sets       []*models.LandmarkSet
}

func (p *fakeProcessor) HandleLandmarks(ctx context.Context, sessionID string, set *models.LandmarkSet) error {
	p.sessionIDs = append(p.sessionIDs, sessionID)
	p.sets = append(p.sets, set)
	return nil
}

func newTestConsumer() (*LandmarkConsumer, *fakeProcessor) {
	cfg := &config.Config{}
	cfg.Session.Topics.Landmarks = "pose/+/landmarks"

	processor := &fakeProcessor{}
	c := NewLandmarkConsumer(cfg, nil, processor, zap.NewNop())
	return c, processor
}

func TestHandleMessage_ExtractsSessionID(t *testing.T) {
	c, processor := newTestConsumer()

	set := models.LandmarkSet{
		Points:    make([]models.Point3D, models.NumLandmarks),
		Timestamp: 1724668800000,
	}
	payload, err := json.Marshal(set)
	require.NoError(t, err)

	err = c.handleMessage("pose/session-42/landmarks", payload)

	require.NoError(t, err)
	require.Len(t, processor.sessionIDs, 1)
	assert.Equal(t, "session-42", processor.sessionIDs[0])
	assert.Len(t, processor.sets[0].Points, models.NumLandmarks)
	assert.Equal(t, int64(1724668800000), processor.sets[0].Timestamp)
}

func TestHandleMessage_InvalidTopic(t *testing.T) {
	c, processor := newTestConsumer()

	err := c.handleMessage("pose", []byte(`{}`))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid topic format")
	assert.Empty(t, processor.sessionIDs)
}

func TestHandleMessage_MalformedPayload(t *testing.T) {
	c, processor := newTestConsumer()

	err := c.handleMessage("pose/session-1/landmarks", []byte("not-json"))

	assert.Error(t, err)
	assert.Empty(t, processor.sessionIDs)
}

func TestHandleMessage_EmptyLandmarksPassedThrough(t *testing.T) {
	c, processor := newTestConsumer()

	// 关键点不全的帧仍交给处理器（按检测失败处理，不在消费层拦截）
	err := c.handleMessage("pose/session-1/landmarks", []byte(`{"points":[],"timestamp":1}`))

	require.NoError(t, err)
	require.Len(t, processor.sets, 1)
	assert.Empty(t, processor.sets[0].Points)
}
