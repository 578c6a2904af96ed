package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the full configuration shared by the poll driver, the
// capture pipeline, and the runner daemon. Values come from config.yaml
// with environment variable overrides on top.
type Config struct {
	// Channels to watch.
	Channels []string `yaml:"channels"`

	// Scheduling window thresholds for upcoming streams (seconds).
	IgnoreWaitGreaterThanSec           int `yaml:"ignore_wait_greater_than_seconds"`
	IgnorePastScheduledStartGreaterSec int `yaml:"ignore_past_scheduled_start_greater_than_seconds"`

	// Dropbox
	DropboxAccessToken string `yaml:"dropbox_api_access_token"`
	DropboxChunkSizeMB int    `yaml:"dropbox_chunk_size_mb"`
	DropboxRoot        string `yaml:"dropbox_root"`

	// Paths
	StatePath   string `yaml:"state_path"`
	CookiesPath string `yaml:"cookies_path"`
	WorkDir     string `yaml:"work_dir"`
	LogDir      string `yaml:"log_dir"`
	CaptureBin  string `yaml:"capture_bin"`

	// External tools
	StreamlinkPath string `yaml:"streamlink_path"`
	FFmpegPath     string `yaml:"ffmpeg_path"`

	// Waiter
	PollThreshold time.Duration `yaml:"poll_threshold"`
	PollInterval  time.Duration `yaml:"poll_interval"`

	// Runner daemon
	RunInterval time.Duration `yaml:"run_interval"`
	ListenAddr  string        `yaml:"listen_addr"`
	Environment string        `yaml:"environment"`
	// APIKey guards the runner's API routes; empty disables auth.
	APIKey string `yaml:"api_key"`

	// Notification
	SMTPAddr   string `yaml:"smtp_addr"`
	NotifyFrom string `yaml:"notify_from"`
	NotifyTo   string `yaml:"notify_to"`
}

// Thresholds is the subset of configuration the classifier and the waiter
// consult when judging scheduled start times.
type Thresholds struct {
	IgnoreWaitGreaterThan           time.Duration
	IgnorePastScheduledStartGreater time.Duration
}

// Thresholds returns the scheduling-window thresholds.
func (c *Config) Thresholds() Thresholds {
	return Thresholds{
		IgnoreWaitGreaterThan:           time.Duration(c.IgnoreWaitGreaterThanSec) * time.Second,
		IgnorePastScheduledStartGreater: time.Duration(c.IgnorePastScheduledStartGreaterSec) * time.Second,
	}
}

// ChunkSize returns the upload chunk size in bytes.
func (c *Config) ChunkSize() int64 {
	return int64(c.DropboxChunkSizeMB) * 1024 * 1024
}

// Load reads config.yaml (path overridable via NAMACAP_CONFIG), applies
// environment overrides, and validates the result. A .env file next to the
// working directory is honored for the Dropbox credential.
func Load() (*Config, error) {
	// Best-effort; a missing .env is not an error.
	_ = godotenv.Load()

	path := getEnv("NAMACAP_CONFIG", "config.yaml")

	cfg := &Config{
		IgnoreWaitGreaterThanSec:           6 * 3600,
		IgnorePastScheduledStartGreaterSec: 2 * 3600,
		DropboxChunkSizeMB:                 32,
		DropboxRoot:                        "/namacap",
		StatePath:                          "state.json",
		CookiesPath:                        "cookies.txt",
		WorkDir:                            "work",
		LogDir:                             "logs",
		CaptureBin:                         "namacap-capture",
		StreamlinkPath:                     "streamlink",
		FFmpegPath:                         "ffmpeg",
		PollThreshold:                      2 * time.Minute,
		PollInterval:                       15 * time.Second,
		RunInterval:                        5 * time.Minute,
		ListenAddr:                         ":8080",
		Environment:                        "development",
		SMTPAddr:                           "localhost:25",
		NotifyFrom:                         "namacap",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if cfg.DropboxChunkSizeMB <= 0 {
		return nil, fmt.Errorf("dropbox_chunk_size_mb must be positive")
	}
	if cfg.IgnoreWaitGreaterThanSec <= 0 || cfg.IgnorePastScheduledStartGreaterSec <= 0 {
		return nil, fmt.Errorf("scheduling window thresholds must be positive")
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.DropboxAccessToken = getEnv("DROPBOX_API_ACCESS_TOKEN", cfg.DropboxAccessToken)
	cfg.StatePath = getEnv("NAMACAP_STATE_PATH", cfg.StatePath)
	cfg.CookiesPath = getEnv("NAMACAP_COOKIES_PATH", cfg.CookiesPath)
	cfg.WorkDir = getEnv("NAMACAP_WORK_DIR", cfg.WorkDir)
	cfg.LogDir = getEnv("NAMACAP_LOG_DIR", cfg.LogDir)
	cfg.CaptureBin = getEnv("NAMACAP_CAPTURE_BIN", cfg.CaptureBin)
	cfg.StreamlinkPath = getEnv("STREAMLINK_PATH", cfg.StreamlinkPath)
	cfg.FFmpegPath = getEnv("FFMPEG_PATH", cfg.FFmpegPath)
	cfg.ListenAddr = getEnv("NAMACAP_LISTEN_ADDR", cfg.ListenAddr)
	cfg.APIKey = getEnv("NAMACAP_API_KEY", cfg.APIKey)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.SMTPAddr = getEnv("NAMACAP_SMTP_ADDR", cfg.SMTPAddr)
	cfg.IgnoreWaitGreaterThanSec = getEnvInt("IGNORE_WAIT_GREATER_THAN_SECONDS", cfg.IgnoreWaitGreaterThanSec)
	cfg.IgnorePastScheduledStartGreaterSec = getEnvInt("IGNORE_PAST_SCHEDULED_START_GREATER_THAN_SECONDS", cfg.IgnorePastScheduledStartGreaterSec)
	cfg.DropboxChunkSizeMB = getEnvInt("DROPBOX_CHUNK_SIZE_MB", cfg.DropboxChunkSizeMB)
	cfg.RunInterval = getEnvDuration("NAMACAP_RUN_INTERVAL", cfg.RunInterval)
	cfg.PollThreshold = getEnvDuration("NAMACAP_POLL_THRESHOLD", cfg.PollThreshold)
	cfg.PollInterval = getEnvDuration("NAMACAP_POLL_INTERVAL", cfg.PollInterval)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
