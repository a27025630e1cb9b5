package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Binance struct {
		WSURL   string   `yaml:"ws_url"`
		RestURL string   `yaml:"rest_url"`
		Symbols []string `yaml:"symbols"`
	} `yaml:"binance"`
	Feed struct {
		ReconnectBaseMS      int `yaml:"reconnect_base_ms"`
		MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
		PollIntervalSec      int `yaml:"poll_interval_sec"`
		PriceMaxAgeMinutes   int `yaml:"price_max_age_minutes"`
	} `yaml:"feed"`
	ServerChan struct {
		UID          string `yaml:"uid"`
		SendKey      string `yaml:"send_key"`
		MaxPerMinute int    `yaml:"max_per_minute"`
	} `yaml:"serverchan"`
	History struct {
		RetentionDays int    `yaml:"retention_days"`
		CleanupCron   string `yaml:"cleanup_cron"`
		DigestCron    string `yaml:"digest_cron"`
	} `yaml:"history"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides. A .env file, if present, is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("BINANCE_WS_URL"); v != "" {
		cfg.Binance.WSURL = v
	}
	if v := os.Getenv("BINANCE_REST_URL"); v != "" {
		cfg.Binance.RestURL = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		cfg.Binance.Symbols = splitSymbols(v)
	}
	if v := os.Getenv("SERVERCHAN_UID"); v != "" {
		cfg.ServerChan.UID = v
	}
	if v := os.Getenv("SERVERCHAN_SENDKEY"); v != "" {
		cfg.ServerChan.SendKey = v
	}

	// Defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/alerts.db"
	}
	if cfg.Binance.WSURL == "" {
		cfg.Binance.WSURL = "wss://fstream.binance.com/stream"
	}
	if cfg.Binance.RestURL == "" {
		cfg.Binance.RestURL = "https://fapi.binance.com"
	}
	if len(cfg.Binance.Symbols) == 0 {
		cfg.Binance.Symbols = []string{"btcusdt"}
	}
	for i, s := range cfg.Binance.Symbols {
		cfg.Binance.Symbols[i] = strings.ToLower(strings.TrimSpace(s))
	}
	if cfg.Feed.ReconnectBaseMS == 0 {
		cfg.Feed.ReconnectBaseMS = 1000
	}
	if cfg.Feed.MaxReconnectAttempts == 0 {
		cfg.Feed.MaxReconnectAttempts = 5
	}
	if cfg.Feed.PollIntervalSec == 0 {
		cfg.Feed.PollIntervalSec = 2
	}
	if cfg.Feed.PriceMaxAgeMinutes == 0 {
		cfg.Feed.PriceMaxAgeMinutes = 10
	}
	if cfg.ServerChan.MaxPerMinute == 0 {
		cfg.ServerChan.MaxPerMinute = 5
	}
	if cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = 30
	}
	if cfg.History.CleanupCron == "" {
		cfg.History.CleanupCron = "0 0 4 * * *"
	}
	if cfg.History.DigestCron == "" {
		cfg.History.DigestCron = "0 0 9 * * *"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if len(c.Binance.Symbols) == 0 {
		return fmt.Errorf("binance.symbols must not be empty")
	}
	if c.Feed.MaxReconnectAttempts < 0 {
		return fmt.Errorf("feed.max_reconnect_attempts must not be negative")
	}
	return nil
}

func splitSymbols(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
