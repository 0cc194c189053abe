package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AppName     = "tori-extract"
	EnvFileName = "config.env"
)

const (
	TextProviderGemini = "gemini"
	TextProviderNebius = "nebius"
)

// Config holds the service settings read from the environment.
type Config struct {
	HTTPAddr    string
	CORSOrigins []string

	GeminiAPIKey  string
	TextProvider  string
	NebiusAPIKey  string
	NebiusBaseURL string
	NebiusModel   string

	CacheDBPath string

	MaxUploadMB       int64
	MaxConcurrentJobs int64
	StageTimeout      time.Duration
	JobTimeout        time.Duration
	JobRetention      time.Duration

	FFmpegPath    string
	FrameInterval time.Duration
	MaxFrames     int

	BotToken     string
	NotifyChatID int64
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory and from .env in the working directory. Errors are ignored
// since the files may not exist. Variables already set are never overridden.
func LoadEnvFile() {
	if configBase, err := os.UserConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(configBase, AppName, EnvFileName))
	}
	_ = godotenv.Load(".env")
}

// Missing returns the names of required variables that are not set.
func Missing() []string {
	required := []string{"GEMINI_API_KEY"}
	if strings.EqualFold(os.Getenv("TEXT_PROVIDER"), TextProviderNebius) {
		required = append(required, "NEBIUS_API_KEY")
	}

	var missing []string
	for _, v := range required {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	return missing
}

// Load reads Config from the environment, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8000"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		TextProvider:  strings.ToLower(getEnv("TEXT_PROVIDER", TextProviderGemini)),
		NebiusAPIKey:  os.Getenv("NEBIUS_API_KEY"),
		NebiusBaseURL: getEnv("NEBIUS_BASE_URL", "https://api.studio.nebius.com/v1"),
		NebiusModel:   getEnv("NEBIUS_MODEL", "meta-llama/Meta-Llama-3.1-70B-Instruct"),
		CacheDBPath:   getEnv("CACHE_DB_PATH", "extract-cache.db"),
		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		BotToken:      os.Getenv("BOT_TOKEN"),
	}

	// CACHE_DB_PATH= explicitly disables the cache
	if v, ok := os.LookupEnv("CACHE_DB_PATH"); ok && v == "" {
		cfg.CacheDBPath = ""
	}

	var err error
	if cfg.MaxUploadMB, err = getInt("MAX_UPLOAD_MB", 100); err != nil {
		return cfg, err
	}
	if cfg.MaxConcurrentJobs, err = getInt("MAX_CONCURRENT_JOBS", 4); err != nil {
		return cfg, err
	}
	maxFrames, err := getInt("MAX_FRAMES", 10)
	if err != nil {
		return cfg, err
	}
	cfg.MaxFrames = int(maxFrames)
	if cfg.NotifyChatID, err = getInt("NOTIFY_CHAT_ID", 0); err != nil {
		return cfg, err
	}

	if cfg.StageTimeout, err = getDuration("STAGE_TIMEOUT", 2*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.JobTimeout, err = getDuration("JOB_TIMEOUT", 15*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.JobRetention, err = getDuration("JOB_RETENTION", 24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.FrameInterval, err = getDuration("FRAME_INTERVAL", 2*time.Second); err != nil {
		return cfg, err
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.TextProvider {
	case TextProviderGemini, TextProviderNebius:
	default:
		return fmt.Errorf("TEXT_PROVIDER must be %q or %q, got %q", TextProviderGemini, TextProviderNebius, c.TextProvider)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be positive")
	}
	if c.MaxFrames <= 0 {
		return fmt.Errorf("MAX_FRAMES must be positive")
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("FRAME_INTERVAL must be positive")
	}
	if c.StageTimeout < 0 || c.JobTimeout < 0 || c.JobRetention < 0 {
		return fmt.Errorf("timeouts and retention must not be negative")
	}
	return nil
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}

// NotificationsEnabled reports whether Telegram notifications are configured.
func (c Config) NotificationsEnabled() bool {
	return c.BotToken != "" && c.NotifyChatID != 0
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s or 2m: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
