package gateway

import "time"

// Config 设备流式网关配置
type Config struct {
	// Path WebSocket 升级路径
	Path string `yaml:"path" json:"path" env:"PATH"`
	// MaxFrameBytes 单帧最大字节数，超过时连接被关闭
	MaxFrameBytes int64 `yaml:"max_frame_bytes" json:"max_frame_bytes" env:"MAX_FRAME_BYTES"`
	// FrameRate 每个连接每秒允许的入站帧数，0 表示不限
	FrameRate float64 `yaml:"frame_rate" json:"frame_rate" env:"FRAME_RATE"`
	// FrameBurst 入站帧突发上限
	FrameBurst int `yaml:"frame_burst" json:"frame_burst" env:"FRAME_BURST"`
	// PingInterval 协议层心跳间隔，0 表示关闭
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval" env:"PING_INTERVAL"`
	// PongTimeout 等待心跳响应的时间
	PongTimeout time.Duration `yaml:"pong_timeout" json:"pong_timeout" env:"PONG_TIMEOUT"`
	// WriteTimeout 单帧写超时
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
	// AllowedOrigins 浏览器来源白名单（host 通配），设备端不带 Origin 时不校验
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// DefaultConfig 返回默认网关配置。
// 16kHz 单声道 PCM 按 20ms 一帧约 50 帧/秒，默认限速留出一倍余量。
func DefaultConfig() Config {
	return Config{
		Path:          "/v1/stream",
		MaxFrameBytes: 64 << 10,
		FrameRate:     100,
		FrameBurst:    200,
		PingInterval:  30 * time.Second,
		PongTimeout:   10 * time.Second,
		WriteTimeout:  5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = d.MaxFrameBytes
	}
	if c.FrameBurst <= 0 {
		c.FrameBurst = d.FrameBurst
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}
