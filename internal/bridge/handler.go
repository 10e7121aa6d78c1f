package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Marwa-001/neural-stride/internal/models"
)

// Notifier 向对端进程回发通知（start/stop 监测指令）
type Notifier func(ctx context.Context, msg models.Message)

// Handler 桥接消息接收侧
//
// 持有本进程的监测状态单一事实来源（isMonitoring），通过显式的
// sessionStatus 对账消息与对端收敛：若本地状态因对账消息实际发生变化，
// 则向对端回发 start/stop 通知，闭合状态环。
type Handler struct {
	logger *zap.Logger
	notify Notifier

	mu         sync.Mutex
	monitoring bool

	// 可选回调：收到姿态/评分更新、监测状态变化时触发
	onPosture    func(models.PostureUpdate)
	onScore      func(float64)
	onMonitoring func(bool)
}

// NewHandler 创建接收侧处理器
func NewHandler(notify Notifier, logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
		notify: notify,
	}
}

// OnPostureUpdate 注册姿态更新回调
func (h *Handler) OnPostureUpdate(fn func(models.PostureUpdate)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onPosture = fn
}

// OnScoreUpdate 注册评分更新回调
func (h *Handler) OnScoreUpdate(fn func(float64)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onScore = fn
}

// OnMonitoringChange 注册监测状态变化回调
func (h *Handler) OnMonitoringChange(fn func(bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMonitoring = fn
}

// Monitoring 返回本进程当前监测状态
func (h *Handler) Monitoring() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.monitoring
}

// SetMonitoring 本地发起的监测状态变更（如用户操作）
func (h *Handler) SetMonitoring(active bool) {
	h.mu.Lock()
	changed := h.monitoring != active
	h.monitoring = active
	fn := h.onMonitoring
	h.mu.Unlock()

	if changed && fn != nil {
		fn(active)
	}
}

// Handle 处理一条跨进程消息，返回应答（nil 表示无需应答）
//
// 载荷缺失或格式错误时返回显式错误应答，不静默丢弃。
func (h *Handler) Handle(ctx context.Context, msg models.Message) *models.Reply {
	switch msg.Action {
	case models.ActionPing:
		return models.ConnectedReply()

	case models.ActionHeartbeat:
		// 心跳为空操作，不应答
		return nil

	case models.ActionUpdatePosture:
		var update models.PostureUpdate
		if err := msg.DecodeData(&update); err != nil {
			h.logger.Warn("Malformed posture update", zap.Error(err))
			return models.ErrorReply("invalid posture data")
		}
		h.mu.Lock()
		fn := h.onPosture
		h.mu.Unlock()
		if fn != nil {
			fn(update)
		}
		return models.SuccessReply()

	case models.ActionSessionStatus:
		var status models.SessionStatus
		if err := msg.DecodeData(&status); err != nil {
			h.logger.Warn("Malformed session status", zap.Error(err))
			return models.ErrorReply("invalid session status")
		}
		h.reconcile(ctx, status.IsActive)
		return models.SuccessReply()

	case models.ActionStartMonitoring:
		h.SetMonitoring(true)
		h.logger.Info("Monitoring started by peer command")
		return models.SuccessReply()

	case models.ActionStopMonitoring:
		h.SetMonitoring(false)
		h.logger.Info("Monitoring stopped by peer command")
		return models.SuccessReply()

	case models.ActionGetStatus:
		monitoring := h.Monitoring()
		return &models.Reply{Monitoring: &monitoring}

	case models.ActionUpdateScore:
		var update models.ScoreUpdate
		if err := msg.DecodeData(&update); err != nil {
			h.logger.Warn("Malformed score update", zap.Error(err))
			return models.ErrorReply("invalid score data")
		}
		h.mu.Lock()
		fn := h.onScore
		h.mu.Unlock()
		if fn != nil {
			fn(update.Score)
		}
		return models.SuccessReply()

	default:
		h.logger.Warn("Unknown bridge action", zap.String("action", msg.Action))
		return models.ErrorReply("unknown action: " + msg.Action)
	}
}

// reconcile 对账监测状态
//
// 仅当本地状态实际发生变化时，才向对端回发 start/stop 通知，
// 使任意一侧发起的状态变更都能双向收敛。
func (h *Handler) reconcile(ctx context.Context, active bool) {
	h.mu.Lock()
	changed := h.monitoring != active
	h.monitoring = active
	fn := h.onMonitoring
	h.mu.Unlock()

	if !changed {
		return
	}

	if fn != nil {
		fn(active)
	}

	action := models.ActionStopMonitoring
	if active {
		action = models.ActionStartMonitoring
	}

	h.logger.Info("Monitoring state reconciled",
		zap.Bool("monitoring", active),
	)

	if h.notify != nil {
		h.notify(ctx, models.Message{Action: action})
	}
}
