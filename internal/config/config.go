package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	UploadDir   string
	StaticDir   string
	TokensFile  string
	MaxFileSize int64 // bytes
	Location    *time.Location

	STTWorkers   int
	STTQueueSize int
}

// AllowedExtensions is the upload allow-list (video containers only).
var AllowedExtensions = map[string]bool{
	".webm": true,
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	maxMB, err := strconv.Atoi(getEnv("MAX_FILE_SIZE_MB", "50"))
	if err != nil || maxMB < 1 {
		return nil, fmt.Errorf("invalid MAX_FILE_SIZE_MB: %q", os.Getenv("MAX_FILE_SIZE_MB"))
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8002"),
		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		StaticDir:   getEnv("STATIC_DIR", "static"),
		TokensFile:  os.Getenv("TOKENS_FILE"),
		MaxFileSize: int64(maxMB) * 1024 * 1024,
		Location:    loadLocation(getEnv("TIMEZONE", "Asia/Bangkok")),

		STTWorkers:   getEnvInt("STT_WORKERS", 2),
		STTQueueSize: getEnvInt("STT_QUEUE_SIZE", 32),
	}

	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return cfg, nil
}

// loadLocation resolves the configured timezone, falling back to the
// system's local zone when the name is unknown.
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("[Config] Unknown timezone %q, using local time: %v", name, err)
		return time.Local
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		log.Printf("[Config] Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
