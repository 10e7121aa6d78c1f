package config

import (
	"os"
	"strconv"
)

// Config 姿态监测服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 会话侧（posture-session）配置
	Session struct {
		SessionID string // 会话标识（空则启动时生成）
		Origin    string // 广播通道的 origin 作用域

		Topics struct {
			Landmarks string // 关键点数据主题，如 "pose/+/landmarks"
			TTS       string // 语音指令主题前缀，如 "tts"
		}

		Voice struct {
			Frequency string // 语音提醒频率: "low" / "medium" / "high"
			Name      string // TTS 语音描述符，由语音合成服务解释
		}

		Cache struct {
			RealtimeKeyPrefix string // 实时数据缓存键前缀，如 "posture:session:"
			RealtimeSuffix    string // 实时数据缓存键后缀，如 ":realtime"
			RealtimeTTL       int    // 实时数据 TTL（秒），默认 30秒
		}
	}

	// 控制面侧（posture-agent）配置
	Agent struct {
		AgentID        string // 本端标识（空则启动时生成）
		Origin         string // 广播通道的 origin 作用域
		StatusInterval int    // 状态核对与摘要输出间隔（秒）
	}

	// 同源广播通道配置（两侧进程共用）
	Broadcast struct {
		AnnounceInterval    int // 就绪广播重试间隔（秒）
		MaxAnnounceAttempts int // 就绪广播最大重试次数
	}

	// 桥接层配置
	Bridge struct {
		PeerID            string // 已知对端标识（仅开发兜底，正式依赖注册握手）
		CheckInterval     int    // 重连检查间隔（秒）
		HeartbeatInterval int    // 心跳间隔（秒）
		RequestTimeout    int    // 请求超时（秒）
		MaxRetries        int    // 单轮连接检查的最大连续失败次数
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 共享基础设施配置：默认值 + 按前缀从环境变量覆盖
	cfg.Database = DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "neuralstride",
		SSLMode:  "disable",
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = RedisConfig{
		Addr: "localhost:6379",
	}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "neural-stride",
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	// 会话侧配置
	cfg.Session.SessionID = getEnv("SESSION_ID", "")
	cfg.Session.Origin = getEnv("SESSION_ORIGIN", "local")
	cfg.Session.Topics.Landmarks = getEnv("POSE_TOPIC_LANDMARKS", "pose/+/landmarks")
	cfg.Session.Topics.TTS = getEnv("TTS_TOPIC_PREFIX", "tts")
	cfg.Session.Voice.Frequency = getEnv("VOICE_FREQUENCY", "medium")
	cfg.Session.Voice.Name = getEnv("VOICE_NAME", "")
	cfg.Session.Cache.RealtimeKeyPrefix = getEnv("CACHE_REALTIME_PREFIX", "posture:session:")
	cfg.Session.Cache.RealtimeSuffix = ":realtime"
	cfg.Session.Cache.RealtimeTTL = getEnvInt("CACHE_REALTIME_TTL", 30)

	// 控制面侧配置
	cfg.Agent.AgentID = getEnv("AGENT_ID", "")
	cfg.Agent.Origin = getEnv("AGENT_ORIGIN", "local")
	cfg.Agent.StatusInterval = getEnvInt("AGENT_STATUS_INTERVAL", 60)

	// 广播通道配置
	cfg.Broadcast.AnnounceInterval = getEnvInt("BROADCAST_ANNOUNCE_INTERVAL", 2)
	cfg.Broadcast.MaxAnnounceAttempts = getEnvInt("BROADCAST_MAX_ANNOUNCE_ATTEMPTS", 10)

	// 桥接层配置
	cfg.Bridge.PeerID = getEnv("BRIDGE_PEER_ID", "")
	cfg.Bridge.CheckInterval = getEnvInt("BRIDGE_CHECK_INTERVAL", 5)
	cfg.Bridge.HeartbeatInterval = getEnvInt("BRIDGE_HEARTBEAT_INTERVAL", 10)
	cfg.Bridge.RequestTimeout = getEnvInt("BRIDGE_REQUEST_TIMEOUT", 3)
	cfg.Bridge.MaxRetries = getEnvInt("BRIDGE_MAX_RETRIES", 5)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
