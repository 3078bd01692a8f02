// Copyright (C) 2025 timevault.app <dev@timevault.app>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads the process configuration once at startup: an
// optional YAML file, overlaid by environment variables, then validated.
// The resulting struct is treated as immutable and passed by reference;
// nothing else in the codebase reads the environment for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Security  SecurityConfig  `yaml:"security"`
	Mail      MailConfig      `yaml:"mail"`
	Media     MediaConfig     `yaml:"media"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	BaseURL        string   `yaml:"base_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StoreConfig struct {
	Type        string `yaml:"type"` // "postgres" or "memory"
	PostgresDSN string `yaml:"postgres_dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SecurityConfig struct {
	EncryptionKey string        `yaml:"encryption_key"`
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTIssuer     string        `yaml:"jwt_issuer"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	// Password guesses allowed per share access code inside one window.
	MaxPasswordAttempts int           `yaml:"max_password_attempts"`
	AttemptWindow       time.Duration `yaml:"attempt_window"`
}

type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type MediaConfig struct {
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	IsLocal bool   `yaml:"is_local"`
}

type SchedulerConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			BaseURL:        "http://localhost:8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Store: StoreConfig{
			Type:        "postgres",
			PostgresDSN: "postgres://localhost/timevault?sslmode=disable",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Security: SecurityConfig{
			JWTIssuer:           "timevault",
			TokenTTL:            24 * time.Hour,
			MaxPasswordAttempts: 10,
			AttemptWindow:       15 * time.Minute,
		},
		Mail: MailConfig{
			Port: 587,
			From: "Time Capsule <no-reply@timevault.app>",
		},
		Media: MediaConfig{
			Bucket: "capsule-media",
			Region: "us-east-1",
		},
		Scheduler: SchedulerConfig{
			SweepInterval: time.Minute,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is OK, use defaults
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}

	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.PostgresDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}

	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		c.Security.EncryptionKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Security.JWTSecret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		c.Security.JWTIssuer = v
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			c.Security.TokenTTL = ttl
		}
	}

	if v := os.Getenv("EMAIL_HOST"); v != "" {
		c.Mail.Host = v
	}
	if v := os.Getenv("EMAIL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Mail.Port = port
		}
	}
	if v := os.Getenv("EMAIL_USER"); v != "" {
		c.Mail.Username = v
	}
	if v := os.Getenv("EMAIL_PASS"); v != "" {
		c.Mail.Password = v
	}
	if v := os.Getenv("EMAIL_FROM"); v != "" {
		c.Mail.From = v
	}

	if v := os.Getenv("MEDIA_BUCKET"); v != "" {
		c.Media.Bucket = v
	}
	if v := os.Getenv("MEDIA_REGION"); v != "" {
		c.Media.Region = v
	}
	if v := os.Getenv("MEDIA_LOCAL"); v != "" {
		c.Media.IsLocal = v == "true" || v == "1"
	}

	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if interval, err := time.ParseDuration(v); err == nil {
			c.Scheduler.SweepInterval = interval
		}
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	if c.Store.Type != "postgres" && c.Store.Type != "memory" {
		return fmt.Errorf("invalid store type: %s (must be 'postgres' or 'memory')", c.Store.Type)
	}
	if c.Store.Type == "postgres" && c.Store.PostgresDSN == "" {
		return fmt.Errorf("postgres_dsn is required when store type is 'postgres'")
	}

	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("encryption_key is required")
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive")
	}
	if c.Security.MaxPasswordAttempts < 1 {
		return fmt.Errorf("max_password_attempts must be at least 1")
	}

	if c.Scheduler.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
