// Package bridge 提供两个进程之间的可靠消息桥接
//
// 职责：
// - 发现：使用已知对端标识尝试连接，失败则等待对端的就绪广播后重试
// - 活性检查：ping 期望 {status: connected} 应答，无应答标记连接断开
// - 带队发送：断开期间出站消息进入 FIFO 待发队列，连接确认后按序补发；
//   队列条目只在确认送达后移除，不会重复投递
// - 重连：固定间隔的连接检查，连续失败达到上限后停止，等待外部触发唤醒
// - 心跳：连接建立后周期性发送空操作消息（对端不应答）
//
// 发送失败永不致命：最坏结果是消息延迟，不会使进程崩溃。
package bridge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Marwa-001/neural-stride/internal/models"
)

// Bridge 查询侧桥接连接（BridgeConnection 状态的唯一持有者）
type Bridge struct {
	transport Transport
	config    Config
	logger    *zap.Logger

	mu         sync.Mutex
	peerID     string
	connected  bool
	pending    []models.Message
	retryCount int
	draining   bool
	runCtx     context.Context // Start 持有的长生命周期上下文

	heartbeatCancel context.CancelFunc
	wakeCh          chan struct{}
}

// New 创建桥接连接
func New(transport Transport, cfg Config, logger *zap.Logger) *Bridge {
	cfg = cfg.withDefaults()
	return &Bridge{
		transport: transport,
		config:    cfg,
		logger:    logger,
		peerID:    cfg.PeerID,
		wakeCh:    make(chan struct{}, 1),
	}
}

// Start 启动周期性连接检查，直到上下文取消
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	b.runCtx = ctx
	b.mu.Unlock()

	// 启动即做一次发现
	b.CheckConnection(ctx)

	ticker := time.NewTicker(b.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.stopHeartbeat()
			b.logger.Info("Bridge stopped")
			return
		case <-b.wakeCh:
			// 外部触发：重置失败计数后立即重试
			b.CheckConnection(ctx)
		case <-ticker.C:
			b.mu.Lock()
			skip := b.connected || b.retryCount >= b.config.MaxRetries
			b.mu.Unlock()
			if !skip {
				b.CheckConnection(ctx)
			}
		}
	}
}

// SetPeer 更新对端标识（收到就绪广播时调用）并触发一次连接检查
func (b *Bridge) SetPeer(peerID string) {
	b.mu.Lock()
	b.peerID = peerID
	b.retryCount = 0
	b.mu.Unlock()

	b.logger.Info("Bridge peer updated", zap.String("peer_id", peerID))
	b.signalWake()
}

// Wake 外部状态变化（如可见性变化）：重置失败计数并恢复连接检查
func (b *Bridge) Wake() {
	b.mu.Lock()
	b.retryCount = 0
	b.mu.Unlock()
	b.signalWake()
}

func (b *Bridge) signalWake() {
	select {
	case b.wakeCh <- struct{}{}:
	default:
	}
}

// Connected 返回当前连接状态
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// PendingCount 返回待发队列长度
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Send 发送消息
//
// 连接断开时消息进入待发队列；发送失败重新入队尾并触发连接检查。
// 对调用方永不返回传输失败。
func (b *Bridge) Send(ctx context.Context, msg models.Message) error {
	b.mu.Lock()
	if !b.connected {
		b.pending = append(b.pending, msg)
		queued := len(b.pending)
		b.mu.Unlock()
		b.logger.Debug("Bridge disconnected, message queued",
			zap.String("action", msg.Action),
			zap.Int("queue_length", queued),
		)
		return nil
	}
	peerID := b.peerID
	b.mu.Unlock()

	if err := b.transport.Send(ctx, peerID, msg); err != nil {
		b.logger.Warn("Failed to send message, re-queueing",
			zap.String("action", msg.Action),
			zap.Error(err),
		)
		b.mu.Lock()
		b.pending = append(b.pending, msg)
		b.connected = false
		b.mu.Unlock()
		b.stopHeartbeat()
		// 触发一次新的连接检查（不继承调用方的上下文，
		// 避免其取消后心跳与重连随之失效）
		go b.CheckConnection(b.lifecycleContext())
	}

	return nil
}

// lifecycleContext 返回连接管理任务使用的长生命周期上下文
func (b *Bridge) lifecycleContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.runCtx != nil {
		return b.runCtx
	}
	return context.Background()
}

// Request 发送请求并等待应答（连接断开时直接报错，由调用方决定处理）
func (b *Bridge) Request(ctx context.Context, msg models.Message) (*models.Reply, error) {
	b.mu.Lock()
	peerID := b.peerID
	b.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()
	return b.transport.Request(reqCtx, peerID, msg)
}

// CheckConnection 执行一次活性检查
//
// ping 收到 {status: connected} 应答视为连接正常，随后补发待发队列并
// 启动心跳；失败累计连续失败计数，达到上限后放弃，等待外部触发。
func (b *Bridge) CheckConnection(ctx context.Context) bool {
	b.mu.Lock()
	peerID := b.peerID
	b.mu.Unlock()

	if peerID == "" {
		// 对端未知：等待就绪广播
		b.logger.Debug("Bridge peer unknown, waiting for announce")
		return false
	}

	reqCtx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	reply, err := b.transport.Request(reqCtx, peerID, models.Message{Action: models.ActionPing})
	cancel()

	if err != nil || reply == nil || reply.Status != "connected" {
		b.markDisconnected(err)
		return false
	}

	b.markConnected(ctx)
	return true
}

// markConnected 标记连接建立：清零失败计数、补发队列、启动心跳
func (b *Bridge) markConnected(ctx context.Context) {
	b.mu.Lock()
	wasConnected := b.connected
	b.connected = true
	b.retryCount = 0
	b.mu.Unlock()

	if !wasConnected {
		b.logger.Info("Bridge connected")
		b.startHeartbeat(ctx)
	}

	b.drainQueue(ctx)
}

// markDisconnected 标记连接断开并累计失败计数
func (b *Bridge) markDisconnected(cause error) {
	b.mu.Lock()
	wasConnected := b.connected
	b.connected = false
	b.retryCount++
	retries := b.retryCount
	b.mu.Unlock()

	if wasConnected {
		b.stopHeartbeat()
	}

	if retries >= b.config.MaxRetries {
		b.logger.Warn("Bridge giving up until external trigger",
			zap.Int("retry_count", retries),
			zap.Error(cause),
		)
	} else {
		b.logger.Debug("Bridge connection check failed",
			zap.Int("retry_count", retries),
			zap.Error(cause),
		)
	}
}

// drainQueue 按 FIFO 补发待发队列
//
// 只处理补发开始时刻的队列快照（补发期间新入队的消息留待下一轮）；
// 条目在确认送达后才从队列移除；任何一条失败立即中止本轮补发。
func (b *Bridge) drainQueue(ctx context.Context) {
	b.mu.Lock()
	if b.draining || len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	b.draining = true
	snapshot := make([]models.Message, len(b.pending))
	copy(snapshot, b.pending)
	peerID := b.peerID
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.draining = false
		b.mu.Unlock()
	}()

	delivered := 0
	for _, msg := range snapshot {
		if err := b.transport.Send(ctx, peerID, msg); err != nil {
			b.logger.Warn("Queue drain interrupted",
				zap.String("action", msg.Action),
				zap.Int("delivered", delivered),
				zap.Error(err),
			)
			b.markDisconnected(err)
			break
		}
		// 确认送达后才移除队首
		b.mu.Lock()
		b.pending = b.pending[1:]
		b.mu.Unlock()
		delivered++
	}

	if delivered > 0 {
		b.logger.Info("Drained pending queue",
			zap.Int("delivered", delivered),
			zap.Int("remaining", b.PendingCount()),
		)
	}
}

// startHeartbeat 启动心跳定时器（连接建立时调用）
func (b *Bridge) startHeartbeat(ctx context.Context) {
	hbCtx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	if b.heartbeatCancel != nil {
		b.heartbeatCancel()
	}
	b.heartbeatCancel = cancel
	b.mu.Unlock()

	go func() {
		ticker := time.NewTicker(b.config.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				b.mu.Lock()
				peerID := b.peerID
				connected := b.connected
				b.mu.Unlock()
				if !connected {
					return
				}
				// 空操作消息，对端不应答；发送失败标记断开，
				// 由下一次显式活性检查接管
				if err := b.transport.Send(hbCtx, peerID, models.Message{Action: models.ActionHeartbeat}); err != nil {
					b.logger.Debug("Heartbeat send failed", zap.Error(err))
					b.markDisconnected(err)
					return
				}
			}
		}
	}()
}

// stopHeartbeat 停止心跳定时器（断开或关闭时调用，避免泄漏重复任务）
func (b *Bridge) stopHeartbeat() {
	b.mu.Lock()
	cancel := b.heartbeatCancel
	b.heartbeatCancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
