package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string
	RedisURL    string

	AdminAPIKey string
	CORSOrigins []string

	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAITTSVoice    string
	OpenAITemperature float64
	OpenAIMaxTokens   int64
	OpenAIMaxHistory  int

	RateLimitInterval time.Duration
	MaxQueueDepth     int
	DedupTTL          time.Duration

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	AudioEnabledByDefault bool
	AudioMaxChars         int

	AutoHandoffMinTurns int
	QualifyCadence      int
	StaleAfter          time.Duration

	HandoffWhatsApp string
	HandoffEmail    string

	WhatsAppURL             string
	WhatsAppAPIKey          string
	WhatsAppDeviceID        string
	WhatsAppNumbers         []string
	WhatsAppSegmentByNumber map[string]string

	InstagramVerifyToken string
	InstagramAccessToken string
	InstagramPageID      string
	InstagramAppSecret   string

	MinioEndpoint    string
	MinioAccessKey   string
	MinioSecretKey   string
	MinioUseSSL      bool
	MinioAudioBucket string

	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	SMTPFromName  string
	SMTPFromEmail string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAITTSVoice:    getEnv("OPENAI_TTS_VOICE", "nova"),
		OpenAITemperature: mustFloat(getEnv("AI_TEMPERATURE", "0.7")),
		OpenAIMaxTokens:   int64(mustInt(getEnv("AI_MAX_TOKENS", "800"))),
		OpenAIMaxHistory:  mustInt(getEnv("AI_MAX_HISTORY", "20")),

		RateLimitInterval: mustDuration(getEnv("RATE_LIMIT_INTERVAL", "1500ms")),
		MaxQueueDepth:     mustInt(getEnv("MAX_QUEUE_DEPTH", "5")),
		DedupTTL:          mustDuration(getEnv("DEDUP_TTL", "5m")),

		RetryMaxAttempts: mustInt(getEnv("RETRY_MAX_ATTEMPTS", "3")),
		RetryBaseDelay:   mustDuration(getEnv("RETRY_BASE_DELAY", "1s")),
		RetryMaxDelay:    mustDuration(getEnv("RETRY_MAX_DELAY", "16s")),

		AudioEnabledByDefault: !strings.EqualFold(getEnv("AUDIO_ENABLED_DEFAULT", "true"), "false"),
		AudioMaxChars:         mustInt(getEnv("AUDIO_MAX_CHARS", "500")),

		AutoHandoffMinTurns: mustInt(getEnv("AUTO_HANDOFF_MIN_TURNS", "16")),
		QualifyCadence:      mustInt(getEnv("QUALIFY_CADENCE", "5")),
		StaleAfter:          mustDuration(getEnv("CONVERSATION_STALE_AFTER", "168h")),

		HandoffWhatsApp: getEnv("HANDOFF_WHATSAPP", ""),
		HandoffEmail:    getEnv("HANDOFF_EMAIL", ""),

		WhatsAppURL:             getEnv("WHATSAPP_URL", ""),
		WhatsAppAPIKey:          getEnv("WHATSAPP_API_KEY", ""),
		WhatsAppDeviceID:        getEnv("WHATSAPP_DEVICE_ID", ""),
		WhatsAppNumbers:         splitCSV(getEnv("WHATSAPP_NUMBERS", "")),
		WhatsAppSegmentByNumber: parseSegmentMap(getEnv("WHATSAPP_SEGMENTS", "")),

		InstagramVerifyToken: getEnv("INSTAGRAM_VERIFY_TOKEN", "verify_token"),
		InstagramAccessToken: getEnv("INSTAGRAM_ACCESS_TOKEN", ""),
		InstagramPageID:      getEnv("INSTAGRAM_PAGE_ID", ""),
		InstagramAppSecret:   getEnv("INSTAGRAM_APP_SECRET", ""),

		MinioEndpoint:    getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey:   getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:   getEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:      strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioAudioBucket: getEnv("MINIO_AUDIO_BUCKET", "voice-replies"),

		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUser:      getEnv("SMTP_USER", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPFromName:  getEnv("SMTP_FROM_NAME", "Atende"),
		SMTPFromEmail: getEnv("SMTP_FROM_EMAIL", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.OpenAIAPIKey == "" && !strings.EqualFold(cfg.Env, "development") {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	return cfg, nil
}

// IsMinioEnabled reports whether audio object storage is configured.
func (c *Config) IsMinioEnabled() bool {
	return c.MinioEndpoint != "" && c.MinioAccessKey != "" && c.MinioSecretKey != ""
}

// IsSMTPEnabled reports whether the operator e-mail channel is configured.
func (c *Config) IsSMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFromEmail != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("invalid duration %q: %v", value, err))
	}
	return d
}

func mustInt(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Sprintf("invalid integer %q: %v", value, err))
	}
	return n
}

func mustFloat(value string) float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		panic(fmt.Sprintf("invalid float %q: %v", value, err))
	}
	return f
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseSegmentMap parses "number=SEGMENT,number=SEGMENT" pairs used to pin a
// WhatsApp line to a fixed segment.
func parseSegmentMap(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		number, segment, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		number = strings.TrimSpace(number)
		segment = strings.TrimSpace(segment)
		if number != "" && segment != "" {
			out[number] = segment
		}
	}
	return out
}
