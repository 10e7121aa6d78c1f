package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Marwa-001/neural-stride/internal/models"
)

// fakeTransport 可控的测试传输
type fakeTransport struct {
	mu        sync.Mutex
	reachable bool
	sent      []models.Message
	sendErrs  int // 前 N 次 Send 返回错误
}

func (t *fakeTransport) Request(ctx context.Context, peerID string, msg models.Message) (*models.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.reachable {
		return nil, errors.New("peer unreachable")
	}
	if msg.Action == models.ActionPing {
		return models.ConnectedReply(), nil
	}
	return models.SuccessReply(), nil
}

func (t *fakeTransport) Send(ctx context.Context, peerID string, msg models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.reachable {
		return errors.New("peer unreachable")
	}
	if t.sendErrs > 0 {
		t.sendErrs--
		return errors.New("transient send failure")
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) setReachable(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reachable = v
}

func (t *fakeTransport) sentActions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	actions := make([]string, 0, len(t.sent))
	for _, msg := range t.sent {
		actions = append(actions, msg.Action)
	}
	return actions
}

func newTestBridge(transport Transport) *Bridge {
	return New(transport, Config{
		PeerID:            "peer-1",
		CheckInterval:     time.Hour, // 测试中手动触发检查
		HeartbeatInterval: time.Hour,
		RequestTimeout:    100 * time.Millisecond,
		MaxRetries:        3,
	}, zap.NewNop())
}

func TestSend_QueuesWhileDisconnected(t *testing.T) {
	transport := &fakeTransport{reachable: false}
	b := newTestBridge(transport)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg, err := models.NewMessage(models.ActionUpdateScore, models.ScoreUpdate{Score: float64(i)})
		require.NoError(t, err)
		require.NoError(t, b.Send(ctx, msg))
	}

	assert.Equal(t, 3, b.PendingCount())
	assert.Empty(t, transport.sentActions())
}

func TestDrainQueue_FIFOOrderNoDuplicates(t *testing.T) {
	transport := &fakeTransport{reachable: false}
	b := newTestBridge(transport)
	ctx := context.Background()

	// 断开期间入队，动作名编码顺序
	actions := []string{models.ActionStartMonitoring, models.ActionUpdateScore, models.ActionSessionStatus, models.ActionStopMonitoring}
	for _, action := range actions {
		require.NoError(t, b.Send(ctx, models.Message{Action: action}))
	}
	require.Equal(t, 4, b.PendingCount())

	// 恢复连接后补发：严格 FIFO，且不重复投递
	transport.setReachable(true)
	require.True(t, b.CheckConnection(ctx))

	assert.Equal(t, actions, transport.sentActions())
	assert.Equal(t, 0, b.PendingCount())

	// 再次检查连接不会重发
	require.True(t, b.CheckConnection(ctx))
	assert.Equal(t, actions, transport.sentActions())
}

func TestDrainQueue_StopsOnFailureKeepsRemaining(t *testing.T) {
	transport := &fakeTransport{reachable: false}
	b := newTestBridge(transport)
	ctx := context.Background()

	actions := []string{models.ActionStartMonitoring, models.ActionUpdateScore, models.ActionSessionStatus, models.ActionStopMonitoring}
	for _, action := range actions {
		require.NoError(t, b.Send(ctx, models.Message{Action: action}))
	}

	// 恢复可达，但注入一次补发失败：本轮补发中止，队列完整保留
	transport.setReachable(true)
	transport.mu.Lock()
	transport.sendErrs = 1
	transport.mu.Unlock()

	assert.True(t, b.CheckConnection(ctx))
	assert.Equal(t, 4, b.PendingCount())
	assert.False(t, b.Connected())

	// 下一轮连接检查成功后全部按序补发，不重复
	require.True(t, b.CheckConnection(ctx))
	assert.Equal(t, 0, b.PendingCount())
	assert.Equal(t, actions, transport.sentActions())
}

func TestSend_FailedImmediateSendRequeuesAtTail(t *testing.T) {
	transport := &fakeTransport{reachable: true}
	b := newTestBridge(transport)
	ctx := context.Background()

	require.True(t, b.CheckConnection(ctx))
	require.True(t, b.Connected())

	// 下一次 Send 失败 → 重新入队尾并标记断开
	transport.mu.Lock()
	transport.sendErrs = 1
	transport.mu.Unlock()

	msg := models.Message{Action: models.ActionSessionStatus}
	require.NoError(t, b.Send(ctx, msg))

	// 等待后台连接检查完成
	assert.Eventually(t, func() bool {
		return b.Connected() && b.PendingCount() == 0
	}, time.Second, 10*time.Millisecond)

	// 消息最终恰好送达一次
	count := 0
	for _, action := range transport.sentActions() {
		if action == models.ActionSessionStatus {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSend_CancelledCallerContextDoesNotKillRecovery(t *testing.T) {
	transport := &fakeTransport{reachable: true}
	b := newTestBridge(transport)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go b.Start(runCtx)

	require.Eventually(t, func() bool {
		return b.Connected()
	}, time.Second, 10*time.Millisecond)

	// 注入一次发送失败，且调用方上下文已取消
	transport.mu.Lock()
	transport.sendErrs = 1
	transport.mu.Unlock()

	callCtx, callCancel := context.WithCancel(context.Background())
	callCancel()
	require.NoError(t, b.Send(callCtx, models.Message{Action: models.ActionSessionStatus}))

	// 后台重连使用长生命周期上下文，不随调用方上下文取消而失效
	assert.Eventually(t, func() bool {
		return b.Connected() && b.PendingCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCheckConnection_BoundedRetries(t *testing.T) {
	transport := &fakeTransport{reachable: false}
	b := newTestBridge(transport)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.False(t, b.CheckConnection(ctx))
	}

	b.mu.Lock()
	retries := b.retryCount
	b.mu.Unlock()
	assert.GreaterOrEqual(t, retries, 3)

	// 外部触发重置计数
	b.Wake()
	b.mu.Lock()
	retries = b.retryCount
	b.mu.Unlock()
	assert.Equal(t, 0, retries)
}

func TestCheckConnection_NoPeerWaitsForAnnounce(t *testing.T) {
	transport := &fakeTransport{reachable: true}
	b := New(transport, Config{
		CheckInterval:  time.Hour,
		RequestTimeout: 100 * time.Millisecond,
		MaxRetries:     3,
	}, zap.NewNop())
	ctx := context.Background()

	// 对端未知：不发起请求
	assert.False(t, b.CheckConnection(ctx))
	assert.False(t, b.Connected())

	// 收到就绪广播后更新对端并可连接
	b.SetPeer("peer-9")
	assert.True(t, b.CheckConnection(ctx))
	assert.True(t, b.Connected())
}
