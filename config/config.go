package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Port string
	Env  string

	MongoURI     string
	DatabaseName string

	JWTSecret     string
	JWTExpiration time.Duration

	B2ApplicationKeyID string
	B2ApplicationKey   string
	B2BucketName       string

	MaxFileSize     int64
	// FileSearchIndex names an Atlas Search index on files. Empty falls
	// back to a regex match on the file name.
	FileSearchIndex string

	TrashRetention time.Duration
	Purge          PurgeConfig

	AllowedOrigins []string
}

type PurgeConfig struct {
	ScanBatchSize    int
	ScanBatchTimeout time.Duration
	ScanSchedule     string
	Concurrency      int
	MaxAttempts      int
	Backoff          time.Duration
	LeaseTimeout     time.Duration
	PollInterval     time.Duration
	RateLimit        int
	RateWindow       time.Duration
}

// BlobStorageEnabled reports whether all B2 credentials are set.
func (c *Config) BlobStorageEnabled() bool {
	return c.B2ApplicationKeyID != "" && c.B2ApplicationKey != "" && c.B2BucketName != ""
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		MongoURI:     getMongoURI(),
		DatabaseName: getEnv("DATABASE_NAME", "trashbin"),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		JWTExpiration: p.durationVar("JWT_EXPIRATION", "24h"),

		B2ApplicationKeyID: firstEnv("B2_APPLICATION_KEY_ID", "B2_KEY_ID", "BACKBLAZE_KEY_ID"),
		B2ApplicationKey:   firstEnv("B2_APPLICATION_KEY", "B2_APP_KEY", "BACKBLAZE_APP_KEY"),
		B2BucketName:       firstEnv("B2_BUCKET_NAME", "B2_BUCKET", "BACKBLAZE_BUCKET"),

		MaxFileSize:     p.int64Var("MAX_FILE_SIZE", "104857600"),
		FileSearchIndex: os.Getenv("FILE_SEARCH_INDEX"),

		TrashRetention: p.durationVar("TRASH_RETENTION", "720h"),
		Purge: PurgeConfig{
			ScanBatchSize:    p.intVar("PURGE_SCAN_BATCH_SIZE", "500"),
			ScanBatchTimeout: p.durationVar("PURGE_SCAN_BATCH_TIMEOUT", "30s"),
			ScanSchedule:     getEnv("PURGE_SCAN_SCHEDULE", "0 0 * * *"),
			Concurrency:      p.intVar("PURGE_WORKER_CONCURRENCY", "5"),
			MaxAttempts:      p.intVar("PURGE_MAX_ATTEMPTS", "5"),
			Backoff:          p.durationVar("PURGE_BACKOFF", "1m"),
			LeaseTimeout:     p.durationVar("PURGE_LEASE_TIMEOUT", "5m"),
			PollInterval:     p.durationVar("PURGE_POLL_INTERVAL", "1s"),
			RateLimit:        p.intVar("PURGE_RATE_LIMIT", "100"),
			RateWindow:       p.durationVar("PURGE_RATE_WINDOW", "10s"),
		},

		AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getMongoURI() string {
	if uri := firstEnv("MONGO_URI", "MONGODB_URI"); uri != "" {
		return uri
	}
	return "mongodb://localhost:27017"
}

// Log writes the loaded configuration with secrets masked.
func (c *Config) Log(logger *zap.Logger) {
	logger.Info("configuration loaded",
		zap.String("port", c.Port),
		zap.String("env", c.Env),
		zap.String("database", c.DatabaseName),
		zap.String("mongo_uri", maskConnectionString(c.MongoURI)),
		zap.String("jwt_secret", maskSecret(c.JWTSecret)),
		zap.Duration("jwt_expiration", c.JWTExpiration),
		zap.String("b2_key_id", maskSecret(c.B2ApplicationKeyID)),
		zap.String("b2_bucket", c.B2BucketName),
		zap.Int64("max_file_size", c.MaxFileSize),
		zap.String("file_search_index", c.FileSearchIndex),
		zap.Duration("trash_retention", c.TrashRetention),
		zap.String("purge_scan_schedule", c.Purge.ScanSchedule),
		zap.Int("purge_scan_batch_size", c.Purge.ScanBatchSize),
		zap.Int("purge_worker_concurrency", c.Purge.Concurrency),
		zap.Strings("allowed_origins", c.AllowedOrigins),
	)
}

func maskSecret(secret string) string {
	if secret == "" {
		return "[NOT SET]"
	}
	if len(secret) <= 8 {
		return "[HIDDEN]"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}

func maskConnectionString(uri string) string {
	if uri == "" {
		return "[NOT SET]"
	}
	if at := strings.LastIndex(uri, "@"); at >= 0 {
		scheme := ""
		if i := strings.Index(uri, "://"); i >= 0 && i < at {
			scheme = uri[:i+3]
		}
		return scheme + "[CREDENTIALS_HIDDEN]@" + uri[at+1:]
	}
	return uri
}

func (c *Config) validate() error {
	var missing []string
	if c.MongoURI == "" {
		missing = append(missing, "MONGO_URI")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}

	switch {
	case c.TrashRetention <= 0:
		return errors.New("TRASH_RETENTION must be positive")
	case c.Purge.ScanBatchSize <= 0:
		return errors.New("PURGE_SCAN_BATCH_SIZE must be positive")
	case c.Purge.Concurrency <= 0:
		return errors.New("PURGE_WORKER_CONCURRENCY must be positive")
	case c.Purge.MaxAttempts <= 0:
		return errors.New("PURGE_MAX_ATTEMPTS must be positive")
	case c.Purge.RateLimit <= 0 || c.Purge.RateWindow <= 0:
		return errors.New("PURGE_RATE_LIMIT and PURGE_RATE_WINDOW must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

// parser collects every malformed value instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) int64Var(key, def string) int64 {
	raw := getEnv(key, def)
	i, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
	}
	return i
}

func (p *parser) intVar(key, def string) int {
	return int(p.int64Var(key, def))
}

func (p *parser) durationVar(key, def string) time.Duration {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
	}
	return d
}

func parseStringSlice(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	var result []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
