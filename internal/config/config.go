// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for mail-in and mail-out.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultMaxInputBytes is the cumulative input ceiling for one mail-in run.
const defaultMaxInputBytes = 1_000_000_000

// Transport names accepted in Config.Transport.
const (
	TransportProcess = "process"
	TransportLocal   = "local"
	TransportSES     = "ses"
	TransportStdout  = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	Transport string        `yaml:"transport"`
	Mail      MailConfig    `yaml:"mail"`
	SES       SESConfig     `yaml:"ses"`
	Logging   LoggingConfig `yaml:"logging"`
}

// MailConfig holds the mailbox store and delivery agent settings.
type MailConfig struct {
	Root          string `yaml:"root"`
	AgentPath     string `yaml:"agent_path"`
	MaxInputBytes int64  `yaml:"max_input_bytes"`
}

// SESConfig holds AWS SES relay configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
	Domain          string `yaml:"domain"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no usable fallback.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportProcess, TransportLocal, TransportSES, TransportStdout:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Mail.Root == "" {
		return fmt.Errorf("mail root must not be empty")
	}
	if c.Mail.MaxInputBytes <= 0 {
		return fmt.Errorf("max input bytes must be positive, got %d", c.Mail.MaxInputBytes)
	}
	return nil
}

// SESConfigured returns true if the SES region, sender and domain are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" &&
		c.SES.Sender != "" &&
		c.SES.Domain != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Transport = TransportProcess
	c.Mail.Root = "./mail"
	c.Mail.AgentPath = "./bin/mail-out"
	c.Mail.MaxInputBytes = defaultMaxInputBytes
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("TRANSPORT"); v != "" {
		c.Transport = strings.ToLower(v)
	}

	if v := os.Getenv("MAIL_ROOT"); v != "" {
		c.Mail.Root = v
	}
	if v := os.Getenv("MAIL_AGENT_PATH"); v != "" {
		c.Mail.AgentPath = v
	}
	if v := os.Getenv("MAIL_MAX_INPUT_BYTES"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Mail.MaxInputBytes = size
		}
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}
	if v := os.Getenv("SES_DOMAIN"); v != "" {
		c.SES.Domain = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
