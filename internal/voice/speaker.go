package voice

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqttclient "github.com/Marwa-001/neural-stride/internal/mqtt"
)

// MQTTSpeaker 通过 MQTT 下发语音指令的 Speaker 实现
//
// 将消息发布到 TTS 指令主题（如 "tts/{session_id}/say"），
// 由外部语音合成服务消费播放。
type MQTTSpeaker struct {
	client *mqttclient.Client
	topic  string
	voice  string
	logger *zap.Logger
}

// NewMQTTSpeaker 创建 MQTT Speaker
func NewMQTTSpeaker(client *mqttclient.Client, topicPrefix, sessionID, voice string, logger *zap.Logger) *MQTTSpeaker {
	return &MQTTSpeaker{
		client: client,
		topic:  fmt.Sprintf("%s/%s/say", topicPrefix, sessionID),
		voice:  voice,
		logger: logger,
	}
}

// Speak 发布语音指令
func (s *MQTTSpeaker) Speak(ctx context.Context, utterance Utterance) error {
	if s.voice != "" && utterance.Voice == "" {
		utterance.Voice = s.voice
	}

	payload, err := json.Marshal(utterance)
	if err != nil {
		return fmt.Errorf("failed to marshal utterance: %w", err)
	}

	if err := s.client.Publish(s.topic, 1, false, payload); err != nil {
		return fmt.Errorf("failed to publish utterance: %w", err)
	}

	s.logger.Debug("Published speech command",
		zap.String("topic", s.topic),
		zap.String("category", string(utterance.Category)),
	)

	return nil
}
