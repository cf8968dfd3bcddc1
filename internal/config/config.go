package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys, also the lower-cased environment variable names.
const (
	KeyPort              = "port"
	KeyChatPassword      = "chat_password"
	KeyJWTSecret         = "jwt_secret"
	KeyJWTTTL            = "jwt_ttl"
	KeyDBPath            = "db_path"
	KeyUploadDir         = "upload_dir"
	KeyMaxUploadBytes    = "max_upload_bytes"
	KeyHistoryLimit      = "history_limit"
	KeyHistoryFetchLimit = "history_fetch_limit"
	KeyLogLevel          = "log_level"
	KeyKeepaliveURL      = "keepalive_url"
	KeyKeepaliveInterval = "keepalive_interval"
	KeyStaticDir         = "static_dir"
)

var defaults = map[string]any{
	KeyPort:              "3000",
	KeyChatPassword:      "123",
	KeyJWTSecret:         "change-me",
	KeyJWTTTL:            "720h",
	KeyDBPath:            "roomrelay.db",
	KeyUploadDir:         "uploads",
	KeyMaxUploadBytes:    15 << 20,
	KeyHistoryLimit:      200,
	KeyHistoryFetchLimit: 50,
	KeyLogLevel:          "info",
	KeyKeepaliveURL:      "",
	KeyKeepaliveInterval: "4m",
	KeyStaticDir:         "public",
}

// Config holds server configuration.
type Config struct {
	Port              string
	ChatPassword      string
	JWTSecret         string
	JWTTTL            time.Duration
	DBPath            string
	UploadDir         string
	MaxUploadBytes    int64
	HistoryLimit      int
	HistoryFetchLimit int
	LogLevel          slog.Level
	KeepaliveURL      string
	// KeepaliveInterval of zero disables the keep-alive worker.
	KeepaliveInterval time.Duration
	StaticDir         string
}

// New returns a viper instance with every default set and environment
// lookup enabled. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	return v
}

// Load reads configuration from v. Numeric values that do not parse fall
// back to their defaults.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:              v.GetString(KeyPort),
		ChatPassword:      v.GetString(KeyChatPassword),
		JWTSecret:         v.GetString(KeyJWTSecret),
		JWTTTL:            v.GetDuration(KeyJWTTTL),
		DBPath:            v.GetString(KeyDBPath),
		UploadDir:         v.GetString(KeyUploadDir),
		MaxUploadBytes:    v.GetInt64(KeyMaxUploadBytes),
		HistoryLimit:      v.GetInt(KeyHistoryLimit),
		HistoryFetchLimit: v.GetInt(KeyHistoryFetchLimit),
		KeepaliveURL:      v.GetString(KeyKeepaliveURL),
		KeepaliveInterval: v.GetDuration(KeyKeepaliveInterval),
		StaticDir:         v.GetString(KeyStaticDir),
	}

	if cfg.JWTTTL <= 0 {
		cfg.JWTTTL = 720 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = int64(defaults[KeyMaxUploadBytes].(int))
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaults[KeyHistoryLimit].(int)
	}
	if cfg.HistoryFetchLimit <= 0 {
		cfg.HistoryFetchLimit = defaults[KeyHistoryFetchLimit].(int)
	}
	if cfg.KeepaliveInterval < 0 {
		cfg.KeepaliveInterval = 0
	}
	if cfg.KeepaliveURL == "" {
		cfg.KeepaliveURL = fmt.Sprintf("http://localhost:%s/health", cfg.Port)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(v.GetString(KeyLogLevel)))); err != nil {
		return Config{}, fmt.Errorf("log level: %w", err)
	}
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("port must not be empty")
	}
	return cfg, nil
}
