package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	Location    *time.Location
	LogLevel    string
	Env         string // dev|prod
	SentryDSN   string
	Release     string

	// AuthJWTSecret verifies session tokens minted by the auth provider.
	AuthJWTSecret string
	// AccessTokenSecret signs playback tokens. Empty means playback
	// issuance fails closed; startup still proceeds.
	AccessTokenSecret string
	AccessTokenTTL    time.Duration

	DemoTTL          time.Duration
	DemoMaxCourses   int
	SubscriptionDays int

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool

	RedisAddr     string
	RedisPassword string
	ObjectStatTTL time.Duration

	TelegramBotToken string
	AdminChatIDs     []int64

	CORSAllowedOrigins []string
	UploadMaxBytes     int64
	UploadProgressTTL  time.Duration
}

func Load() (*Config, error) {
	tz := getenv("TZ", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}

	adminIDs, err := parseIDs(os.Getenv("ADMIN_CHAT_IDS"))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_CHAT_IDS: %w", err)
	}

	cfg := &Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: mustEnv("DATABASE_URL"),
		Location:    loc,
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Env:         getenv("ENV", "dev"),
		SentryDSN:   os.Getenv("SENTRY_DSN"),
		Release:     getenv("RELEASE", "dev"),

		AuthJWTSecret:     os.Getenv("AUTH_JWT_SECRET"),
		AccessTokenSecret: os.Getenv("ACCESS_TOKEN_SECRET"),

		S3Endpoint:  getenv("S3_ENDPOINT", "s3.amazonaws.com"),
		S3Region:    getenv("S3_REGION", "us-east-1"),
		S3Bucket:    getenv("S3_BUCKET", "lecture-recordings"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),

		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		AdminChatIDs:     adminIDs,

		CORSAllowedOrigins: splitList(getenv("CORS_ALLOWED_ORIGINS", "*")),
	}

	if cfg.AccessTokenTTL, err = getDuration("ACCESS_TOKEN_TTL", 600*time.Second); err != nil {
		return nil, err
	}
	if cfg.DemoTTL, err = getDuration("DEMO_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ObjectStatTTL, err = getDuration("OBJECT_STAT_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.UploadProgressTTL, err = getDuration("UPLOAD_PROGRESS_TTL", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.DemoMaxCourses, err = getInt("DEMO_MAX_COURSES", 1); err != nil {
		return nil, err
	}
	if cfg.SubscriptionDays, err = getInt("SUBSCRIPTION_DAYS", 30); err != nil {
		return nil, err
	}
	maxMB, err := getInt("UPLOAD_MAX_MB", 4096)
	if err != nil {
		return nil, err
	}
	cfg.UploadMaxBytes = int64(maxMB) << 20
	if cfg.S3UseSSL, err = getBool("S3_USE_SSL", true); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("required env " + k + " is empty")
	}
	return v
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	// голые числа считаем секундами
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: bad duration %q", k, v)
	}
	return time.Duration(n) * time.Second, nil
}

func getInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getBool(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIDs(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}
