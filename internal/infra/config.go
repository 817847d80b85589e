package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	GeoIPDBPath        string
	FalAPIKey          string
	FalQueueURL        string
	FalPollInterval    time.Duration
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
	ImageTimeout       time.Duration
	VideoTimeout       time.Duration
	SlowVideoTimeout   time.Duration
	AudioTimeout       time.Duration
	AnonRetention      time.Duration
	InlineRemoteImages bool
	InlineImageMaxSize int64
	RetentionSweep     time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		FalAPIKey:          strings.TrimSpace(os.Getenv("FAL_KEY")),
		FalQueueURL:        strings.TrimRight(getEnv("FAL_QUEUE_URL", "https://queue.fal.run"), "/"),
		FalPollInterval:    time.Millisecond * time.Duration(getEnvInt("FAL_POLL_INTERVAL_MS", 1000)),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 660)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		ImageTimeout:       time.Second * time.Duration(getEnvInt("IMAGE_TIMEOUT_SECONDS", 120)),
		VideoTimeout:       time.Second * time.Duration(getEnvInt("VIDEO_TIMEOUT_SECONDS", 300)),
		SlowVideoTimeout:   time.Second * time.Duration(getEnvInt("SLOW_VIDEO_TIMEOUT_SECONDS", 480)),
		AudioTimeout:       time.Second * time.Duration(getEnvInt("AUDIO_TIMEOUT_SECONDS", 120)),
		AnonRetention:      time.Hour * time.Duration(getEnvInt("ANON_RETENTION_HOURS", 72)),
		InlineRemoteImages: getEnvBool("INLINE_REMOTE_IMAGES", false),
		InlineImageMaxSize: int64(getEnvInt("INLINE_IMAGE_MAX_BYTES", 2<<20)),
		RetentionSweep:     time.Minute * time.Duration(getEnvInt("RETENTION_SWEEP_MINUTES", 15)),
	}

	u, err := url.Parse(cfg.FalQueueURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("FAL_QUEUE_URL must be an absolute URL")
	}
	if cfg.FalPollInterval <= 0 {
		return nil, fmt.Errorf("FAL_POLL_INTERVAL_MS must be positive")
	}
	if cfg.ImageTimeout <= 0 || cfg.VideoTimeout <= 0 || cfg.SlowVideoTimeout <= 0 || cfg.AudioTimeout <= 0 {
		return nil, fmt.Errorf("generation timeouts must be positive")
	}
	if cfg.SlowVideoTimeout < cfg.VideoTimeout {
		return nil, fmt.Errorf("SLOW_VIDEO_TIMEOUT_SECONDS must not be shorter than VIDEO_TIMEOUT_SECONDS")
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 30
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
