package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Mindburn-Labs/mirrornode/pkg/observability"
)

// Config holds server configuration.
type Config struct {
	Port               string
	LogLevel           string
	HistorySize        int
	AdapterTimeout     time.Duration
	AdaptersFile       string
	ConsensusRule      string
	RateLimitPerMinute int
	CORSOrigins        []string

	CanonRoot     string
	AuditSink     string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	GCSBucket     string
	GCSPrefix     string

	OTelEnabled  bool
	OTLPEndpoint string
}

// DefaultCORSOrigins are the local dashboard dev servers.
var DefaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:5173", "http://localhost:8000"}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	canonRoot := os.Getenv("CANON_ROOT")
	if canonRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		canonRoot = filepath.Join(home, "mirrornode", "canon")
	}

	auditSink := strings.ToLower(os.Getenv("AUDIT_SINK"))
	if auditSink == "" {
		auditSink = SinkDossier
	}

	consensusRule := os.Getenv("MIRRORNODE_CONSENSUS_RULE")
	if consensusRule == "" {
		consensusRule = "majority"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	s3Region := os.Getenv("AUDIT_S3_REGION")
	if s3Region == "" {
		s3Region = "us-east-1"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	return &Config{
		Port:               port,
		LogLevel:           logLevel,
		HistorySize:        envInt("MIRRORNODE_HISTORY_SIZE", 1000),
		AdapterTimeout:     envDuration("MIRRORNODE_ADAPTER_TIMEOUT", 30*time.Second),
		AdaptersFile:       os.Getenv("MIRRORNODE_ADAPTERS_FILE"),
		ConsensusRule:      consensusRule,
		RateLimitPerMinute: envInt("MIRRORNODE_RATE_LIMIT", 60),
		CORSOrigins:        envList("CORS_ORIGINS", DefaultCORSOrigins),
		CanonRoot:          canonRoot,
		AuditSink:          auditSink,
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          redisAddr,
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		S3Bucket:           os.Getenv("AUDIT_S3_BUCKET"),
		S3Region:           s3Region,
		S3Endpoint:         os.Getenv("AUDIT_S3_ENDPOINT"),
		GCSBucket:          os.Getenv("AUDIT_GCS_BUCKET"),
		GCSPrefix:          os.Getenv("AUDIT_GCS_PREFIX"),
		OTelEnabled:        os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:       otlpEndpoint,
	}
}

// SlogLevel maps LogLevel onto slog. Unknown values mean INFO.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Observability returns the telemetry settings for this process.
func (c *Config) Observability() *observability.Config {
	oc := observability.DefaultConfig()
	oc.Enabled = c.OTelEnabled
	oc.OTLPEndpoint = c.OTLPEndpoint
	oc.Insecure = true
	if env := os.Getenv("MIRRORNODE_ENV"); env != "" {
		oc.Environment = env
	}
	return oc
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		slog.Warn("ignoring invalid integer setting", "key", key, "value", raw)
		return def
	}
	return v
}

// envList splits a comma-separated setting, dropping empty entries.
func envList(key string, def []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), def...)
	}
	return out
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		// Bare numbers are seconds.
		secs, aerr := strconv.ParseFloat(raw, 64)
		if aerr != nil {
			slog.Warn("ignoring invalid duration setting", "key", key, "value", raw)
			return def
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d <= 0 {
		return def
	}
	return d
}
