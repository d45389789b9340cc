package types

import "time"

// ServerConf 包含 telnet 测试服务器的监听与发送配置
type ServerConf struct {
	Host string `ini:"host"`
	Port int    `ini:"port"`
	// EmitInterval is the pause between two messages on one connection.
	EmitInterval time.Duration `ini:"emit_interval"`
	// WriteTimeout bounds a single banner or message write. 0 disables it.
	WriteTimeout time.Duration `ini:"write_timeout"`
	// MaxConnections caps simultaneous sessions. 0 means unlimited.
	MaxConnections int `ini:"max_connections"`
}

// MonitorConf 控制可选的 websocket 监控页面
type MonitorConf struct {
	WebPort int `ini:"web_port"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// Config is the unified configuration of the server.
type Config struct {
	ServerConf  `ini:"server"`
	MonitorConf `ini:"monitor"`
	LogConf     `ini:"log"`
}
