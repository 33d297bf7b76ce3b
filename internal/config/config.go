// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package config loads and validates the Courier configuration from
// layered sources: built-in defaults, an optional YAML file, and
// environment variables, in ascending priority.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Chat      ChatConfig      `koanf:"chat"`
	Push      PushConfig      `koanf:"push"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Database  DatabaseConfig  `koanf:"database"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// SecurityConfig holds authentication and request-protection settings.
type SecurityConfig struct {
	// JWTSecret signs session tokens. Required, minimum 32 characters.
	JWTSecret string `koanf:"jwt_secret"`

	SessionTimeout time.Duration `koanf:"session_timeout"`

	// AdminUsername and AdminPassword back the login endpoint.
	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`

	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// ChatConfig holds message channel settings.
type ChatConfig struct {
	// CooldownWindow throttles bulk group pushes per room.
	CooldownWindow time.Duration `koanf:"cooldown_window"`
}

// PushConfig holds push provider settings. An empty endpoint disables
// mobile push entirely; notification records and live emits are unaffected.
type PushConfig struct {
	Endpoint   string        `koanf:"endpoint"`
	APIKey     string        `koanf:"api_key"`
	Timeout    time.Duration `koanf:"timeout"`
	RatePerSec float64       `koanf:"rate_per_sec"`
	Burst      int           `koanf:"burst"`
}

// SchedulerConfig holds the cron job schedules.
type SchedulerConfig struct {
	Enabled bool `koanf:"enabled"`

	// RecipientsGroup names the group whose members receive the scheduled
	// reminders. Required when the scheduler is enabled; the subsystem does
	// not own the full user table.
	RecipientsGroup string `koanf:"recipients_group"`

	// AttendanceSpec and ScrumSpec are cron expressions for the daily
	// reminders.
	AttendanceSpec string `koanf:"attendance_spec"`
	ScrumSpec      string `koanf:"scrum_spec"`
}

// DatabaseConfig holds the embedded store settings.
type DatabaseConfig struct {
	// Path is the BadgerDB directory. Empty means in-memory, for
	// development only.
	Path string `koanf:"path"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, overridden by the config
// file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8320,
			Timeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			SessionTimeout:  24 * time.Hour,
			AdminUsername:   "",
			AdminPassword:   "",
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Chat: ChatConfig{
			CooldownWindow: 10 * time.Second,
		},
		Push: PushConfig{
			Endpoint:   "",
			APIKey:     "",
			Timeout:    10 * time.Second,
			RatePerSec: 50,
			Burst:      10,
		},
		Scheduler: SchedulerConfig{
			Enabled:         false,
			RecipientsGroup: "",
			AttendanceSpec:  "0 0 9 * * 1-5",  // weekdays 09:00 UTC
			ScrumSpec:       "0 30 9 * * 1-5", // weekdays 09:30 UTC
		},
		Database: DatabaseConfig{
			Path: "/data/courier",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := validateStructTags(c); err != nil {
		return err
	}

	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters, got %d", len(c.Security.JWTSecret))
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("security.session_timeout must be positive, got %s", c.Security.SessionTimeout)
	}
	if c.Chat.CooldownWindow < 0 {
		return fmt.Errorf("chat.cooldown_window must not be negative, got %s", c.Chat.CooldownWindow)
	}
	if c.Push.Endpoint != "" && c.Push.Timeout <= 0 {
		return fmt.Errorf("push.timeout must be positive when push is enabled, got %s", c.Push.Timeout)
	}
	if c.Scheduler.Enabled && c.Scheduler.RecipientsGroup == "" {
		return fmt.Errorf("scheduler.recipients_group is required when the scheduler is enabled")
	}
	return nil
}
