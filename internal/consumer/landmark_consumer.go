// Package consumer 关键点数据消费
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Marwa-001/neural-stride/internal/config"
	"github.com/Marwa-001/neural-stride/internal/models"
	mqttclient "github.com/Marwa-001/neural-stride/internal/mqtt"
)

// Processor 单帧关键点处理器
type Processor interface {
	HandleLandmarks(ctx context.Context, sessionID string, set *models.LandmarkSet) error
}

// LandmarkConsumer 关键点 MQTT 消息消费者
type LandmarkConsumer struct {
	config     *config.Config
	mqttClient *mqttclient.Client
	processor  Processor
	logger     *zap.Logger
}

// NewLandmarkConsumer 创建关键点消费者
func NewLandmarkConsumer(
	cfg *config.Config,
	mqttClient *mqttclient.Client,
	processor Processor,
	logger *zap.Logger,
) *LandmarkConsumer {
	return &LandmarkConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		processor:  processor,
		logger:     logger,
	}
}

// Start 启动消费者
func (c *LandmarkConsumer) Start(ctx context.Context) error {
	// 订阅关键点数据主题
	if err := c.mqttClient.Subscribe(c.config.Session.Topics.Landmarks, 1, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to landmarks topic: %w", err)
	}

	c.logger.Info("Landmark consumer started",
		zap.String("topic", c.config.Session.Topics.Landmarks),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *LandmarkConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.config.Session.Topics.Landmarks); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("Landmark consumer stopped")
	return nil
}

// handleMessage 处理一条关键点消息
func (c *LandmarkConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received landmark message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	// 1. 从主题中提取会话标识
	// 主题格式: pose/{session_id}/landmarks
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	sessionID := parts[1]

	// 2. 解析关键点数据
	var set models.LandmarkSet
	if err := json.Unmarshal(payload, &set); err != nil {
		c.logger.Error("Failed to unmarshal landmark message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal landmarks: %w", err)
	}

	// 3. 交给处理器（缺失关键点由处理器按检测失败处理，不在此拦截）
	if err := c.processor.HandleLandmarks(context.Background(), sessionID, &set); err != nil {
		return fmt.Errorf("failed to process landmarks: %w", err)
	}

	return nil
}
