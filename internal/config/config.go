// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config defines the global configuration structure.
type Config struct {
	TCP     TCPConfig     `mapstructure:"tcp"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Capture CaptureConfig `mapstructure:"capture"`
	Log     LogConfig     `mapstructure:"log"`
}

// TCPConfig defines the listener and framing settings for the core.
type TCPConfig struct {
	Port              int           `mapstructure:"port"`
	Framing           string        `mapstructure:"framing"`
	MaxFrameLength    int           `mapstructure:"max-frame-length"`
	ReaderIdleSeconds int           `mapstructure:"reader-idle-seconds"`
	RespondEnabled    bool          `mapstructure:"respond-enabled"`
	DetectWindow      int           `mapstructure:"detect-window"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown-grace"`
}

// MetricsConfig defines the optional Prometheus exposition endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// CaptureConfig defines the binary logging sink used by Raw framing.
type CaptureConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig defines logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Framing mode values accepted by TCPConfig.Framing.
const (
	FramingAuto       = "auto"
	FramingRaw        = "raw"
	FramingLengthField = "length-field"
	FramingJSONObject = "json-object"
	FramingLine       = "line"
	FramingModbusRTU  = "modbus-rtu"
)

var validFramingModes = map[string]bool{
	FramingAuto:        true,
	FramingRaw:         true,
	FramingLengthField: true,
	FramingJSONObject:  true,
	FramingLine:        true,
	FramingModbusRTU:   true,
}

// LoadConfig loads configuration from file, applying defaults for anything
// left unset and validating the framing mode.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/tcpframe/")
		v.AddConfigPath("$HOME/.tcpframe")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TCPFRAME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tcp.port", 9000)
	v.SetDefault("tcp.framing", FramingAuto)
	v.SetDefault("tcp.max-frame-length", 1<<20)
	v.SetDefault("tcp.reader-idle-seconds", 60)
	v.SetDefault("tcp.respond-enabled", true)
	v.SetDefault("tcp.detect-window", 64)
	v.SetDefault("tcp.shutdown-grace", 5*time.Second)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("capture.path", "")
	v.SetDefault("log.level", "info")
}

func (c *Config) validate() error {
	mode := strings.ToLower(c.TCP.Framing)
	if !validFramingModes[mode] {
		return fmt.Errorf("config: unknown tcp.framing %q", c.TCP.Framing)
	}
	c.TCP.Framing = mode

	if c.TCP.MaxFrameLength <= 0 {
		return fmt.Errorf("config: tcp.max-frame-length must be positive")
	}
	if c.TCP.DetectWindow <= 0 {
		return fmt.Errorf("config: tcp.detect-window must be positive")
	}
	return nil
}
