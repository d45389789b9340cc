package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"telnet_testserver/internal/shared/types"
)

const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 2323
	DefaultEmitInterval = 3 * time.Second
	// DefaultWriteTimeout of 0 leaves writes without a deadline.
	DefaultWriteTimeout time.Duration = 0

	// EnvPort overrides the listen port.
	EnvPort     = "TELNET_PORT"
	EnvLogLevel = "LOG_LEVEL"
)

// ErrInvalidPort is returned when the port override is not an integer in 0..65535.
var ErrInvalidPort = errors.New("invalid port")

// Default returns the configuration used when no ini file is present.
func Default() *types.Config {
	return &types.Config{
		ServerConf: types.ServerConf{
			Host:         DefaultHost,
			Port:         DefaultPort,
			EmitInterval: DefaultEmitInterval,
			WriteTimeout: DefaultWriteTimeout,
		},
		LogConf: types.LogConf{Level: "info"},
	}
}

// LoadIni 加载 telnetd.ini 行为配置文件。文件不存在时保留默认值。
func LoadIni(cfg *types.Config, fileName string) error {
	if _, err := os.Stat(fileName); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map config file: %w", err)
	}
	return nil
}

// ApplyEnv applies environment overrides. Unlike the ini values, a malformed
// TELNET_PORT is an error rather than silently ignored.
func ApplyEnv(cfg *types.Config) error {
	if err := overrideFromEnvPort(&cfg.ServerConf.Port, EnvPort); err != nil {
		return err
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.LogConf.Level = level
	}
	return nil
}

// Validate ensures the configuration is coherent.
func Validate(cfg *types.Config) error {
	if strings.TrimSpace(cfg.ServerConf.Host) == "" {
		return fmt.Errorf("server host must not be empty")
	}
	if cfg.ServerConf.Port < 0 || cfg.ServerConf.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, cfg.ServerConf.Port)
	}
	if cfg.ServerConf.EmitInterval <= 0 {
		return fmt.Errorf("emit_interval must be positive, got %s", cfg.ServerConf.EmitInterval)
	}
	if cfg.ServerConf.WriteTimeout < 0 {
		return fmt.Errorf("write_timeout must not be negative, got %s", cfg.ServerConf.WriteTimeout)
	}
	if cfg.ServerConf.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative, got %d", cfg.ServerConf.MaxConnections)
	}
	if cfg.MonitorConf.WebPort < 0 || cfg.MonitorConf.WebPort > 65535 {
		return fmt.Errorf("%w: web_port %d", ErrInvalidPort, cfg.MonitorConf.WebPort)
	}
	return nil
}

// Load runs the full pipeline: defaults, ini file, environment, validation.
func Load(fileName string) (*types.Config, error) {
	cfg := Default()
	if err := LoadIni(cfg, fileName); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideFromEnvPort(target *int, envName string) error {
	envValue, ok := os.LookupEnv(envName)
	if !ok {
		return nil
	}
	port, err := strconv.Atoi(strings.TrimSpace(envValue))
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidPort, envName, envValue)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: %s=%d is out of range", ErrInvalidPort, envName, port)
	}
	*target = port
	return nil
}
