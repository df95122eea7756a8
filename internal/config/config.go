// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and LETS_ environment variables on top.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"runtime"
	"time"
)

// Leaderboard backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":5002".
	Addr string `koanf:"addr"`

	// DatabasePath points at the SQLite ranking database.
	DatabasePath string `koanf:"database_path"`

	// LeaderboardBackend is "memory" or "redis".
	LeaderboardBackend string `koanf:"leaderboard_backend"`
	RedisAddr          string `koanf:"redis_addr"`
	RedisPassword      string `koanf:"redis_password"`
	RedisDB            int    `koanf:"redis_db"`

	// EventQueueSize bounds the in-memory score submission queue.
	EventQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of score workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize and DedupeTTLSeconds bound the score idempotency cache.
	DedupeSize       int `koanf:"dedupe_size"`
	DedupeTTLSeconds int `koanf:"dedupe_ttl_seconds"`

	// OsuAPIURL and OsuAPIKey configure the upstream metadata lookup.
	OsuAPIURL         string `koanf:"osu_api_url"`
	OsuAPIKey         string `koanf:"osu_api_key"`
	MetadataTimeoutMS int    `koanf:"metadata_timeout_ms"`

	// SweepSchedule is a standard cron expression for the autorank sweep.
	SweepSchedule  string `koanf:"sweep_schedule"`
	SweepBatchSize int    `koanf:"sweep_batch_size"`

	// DiscordWebhookURL receives autorank announcements; empty disables delivery.
	DiscordWebhookURL string `koanf:"discord_webhook_url"`
	// BeatmapDownloadURL is the mirror prefix used by /d/ redirects.
	BeatmapDownloadURL string `koanf:"beatmap_download_url"`

	UserCacheSize       int `koanf:"user_cache_size"`
	UserCacheTTLSeconds int `koanf:"user_cache_ttl_seconds"`

	// RankingMetric maps a game mode name (std, taiko, ctb, mania) to "pp" or "score".
	RankingMetric map[string]string `koanf:"ranking_metric"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":5002",
		DatabasePath:        "lets.db",
		LeaderboardBackend:  BackendMemory,
		RedisAddr:           "localhost:6379",
		EventQueueSize:      100_000,
		WorkerCount:         runtime.NumCPU() * 2,
		DedupeSize:          500_000,
		DedupeTTLSeconds:    3600,
		OsuAPIURL:           "https://osu.ppy.sh/api",
		MetadataTimeoutMS:   5000,
		SweepSchedule:       "*/30 * * * *",
		SweepBatchSize:      200,
		BeatmapDownloadURL:  "https://storage.ainu.pw/d/",
		UserCacheSize:       50_000,
		UserCacheTTLSeconds: 300,
		RankingMetric: map[string]string{
			"std":   "pp",
			"taiko": "pp",
			"ctb":   "pp",
			"mania": "pp",
		},
	}
}

// MetadataTimeout returns the upstream lookup timeout as a duration.
func (c *Config) MetadataTimeout() time.Duration {
	return time.Duration(c.MetadataTimeoutMS) * time.Millisecond
}

// DedupeTTL returns the idempotency window as a duration.
func (c *Config) DedupeTTL() time.Duration {
	return time.Duration(c.DedupeTTLSeconds) * time.Second
}

// UserCacheTTL returns the user directory cache TTL as a duration.
func (c *Config) UserCacheTTL() time.Duration {
	return time.Duration(c.UserCacheTTLSeconds) * time.Second
}
