// Package config loads LumiRise's YAML configuration, applying defaults the
// same way the reference backend's loadConfig does: unmarshal, then fill in
// zero values explicitly. Server, username, password and
// maxReconnectionAttempts have no default (0 attempts means unlimited).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration tree for the LumiRise process.
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Publish   PublishConfig   `yaml:"publish"`
	Dimmer    DimmerConfig    `yaml:"dimmer"`
	Topics    TopicsConfig    `yaml:"topics"`
	Log       LogConfig       `yaml:"log"`
}

type BrokerConfig struct {
	Server           string `yaml:"server"`
	Port             int    `yaml:"port"`
	ClientID         string `yaml:"clientId"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	KeepAliveSeconds int    `yaml:"keepAliveSeconds"`
}

type ReconnectConfig struct {
	ReconnectionDelayMs    int     `yaml:"reconnectionDelayMs"`
	MaxReconnectionDelayMs int     `yaml:"maxReconnectionDelayMs"`
	BackoffMultiplier      float64 `yaml:"backoffMultiplier"`
	MaxReconnectionAttempts int    `yaml:"maxReconnectionAttempts"`
}

type PublishConfig struct {
	CommandTimeoutMs           int `yaml:"commandTimeoutMs"`
	StatusConfirmationTimeoutMs int `yaml:"statusConfirmationTimeoutMs"`
	CommandQueueDepth          int `yaml:"commandQueueDepth"`
}

type DimmerConfig struct {
	MinimumBrightnessPercent int `yaml:"minimumBrightnessPercent"`
	RampStepDelayMs          int `yaml:"rampStepDelayMs"`
}

type TopicsConfig struct {
	PowerCommand      string `yaml:"powerCommand"`
	PowerStatus       string `yaml:"powerStatus"`
	BrightnessCommand string `yaml:"brightnessCommand"`
	BrightnessStatus  string `yaml:"brightnessStatus"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses the YAML file at path, applying defaults to
// zero-valued fields that have one. An empty path falls back to the LUMIRISE_CONFIG env var,
// then to "configs/lumirise.yaml".
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv("LUMIRISE_CONFIG")
	}
	if path == "" {
		path = "configs/lumirise.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Broker.Port == 0 {
		c.Broker.Port = 1883
	}
	if c.Broker.ClientID == "" {
		c.Broker.ClientID = "lumirise"
	}
	if c.Broker.KeepAliveSeconds == 0 {
		c.Broker.KeepAliveSeconds = 60
	}
	if c.Reconnect.ReconnectionDelayMs == 0 {
		c.Reconnect.ReconnectionDelayMs = 1000
	}
	if c.Reconnect.MaxReconnectionDelayMs == 0 {
		c.Reconnect.MaxReconnectionDelayMs = 30000
	}
	if c.Reconnect.BackoffMultiplier == 0 {
		c.Reconnect.BackoffMultiplier = 2.0
	}
	if c.Publish.CommandTimeoutMs == 0 {
		c.Publish.CommandTimeoutMs = 5000
	}
	if c.Publish.StatusConfirmationTimeoutMs == 0 {
		c.Publish.StatusConfirmationTimeoutMs = 5000
	}
	if c.Publish.CommandQueueDepth == 0 {
		c.Publish.CommandQueueDepth = 20
	}
	if c.Dimmer.MinimumBrightnessPercent == 0 {
		c.Dimmer.MinimumBrightnessPercent = 20
	}
	if c.Dimmer.RampStepDelayMs == 0 {
		c.Dimmer.RampStepDelayMs = 100
	}
	if c.Topics.PowerCommand == "" {
		c.Topics.PowerCommand = "cmnd/dimmer/power"
	}
	if c.Topics.PowerStatus == "" {
		c.Topics.PowerStatus = "stat/dimmer/POWER"
	}
	if c.Topics.BrightnessCommand == "" {
		c.Topics.BrightnessCommand = "cmnd/dimmer/dimmer"
	}
	if c.Topics.BrightnessStatus == "" {
		c.Topics.BrightnessStatus = "stat/dimmer/RESULT"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c ReconnectConfig) BaseDelay() time.Duration {
	return time.Duration(c.ReconnectionDelayMs) * time.Millisecond
}

func (c ReconnectConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxReconnectionDelayMs) * time.Millisecond
}

func (c PublishConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMs) * time.Millisecond
}

func (c DimmerConfig) RampStepDelay() time.Duration {
	return time.Duration(c.RampStepDelayMs) * time.Millisecond
}
