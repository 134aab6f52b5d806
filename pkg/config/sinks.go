package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mindburn-Labs/mirrornode/pkg/audit"
)

// Audit sink kinds accepted in AUDIT_SINK. A comma-separated list fans out
// to every named sink.
const (
	SinkMemory   = "memory"
	SinkDossier  = "dossier"
	SinkSQLite   = "sqlite"
	SinkPostgres = "postgres"
	SinkRedis    = "redis"
	SinkS3       = "s3"
	SinkGCS      = "gcs"
)

var ErrUnknownSink = errors.New("unknown audit sink")

type sinkFactory func(ctx context.Context, c *Config) (audit.Sink, error)

// optionalSinks holds kinds compiled in behind build tags.
var optionalSinks = map[string]sinkFactory{}

// OpenAuditSink builds the sink named by AuditSink. Sinks holding
// connections implement io.Closer.
func (c *Config) OpenAuditSink(ctx context.Context) (audit.Sink, error) {
	kinds := strings.Split(c.AuditSink, ",")
	if len(kinds) == 1 {
		return c.openSink(ctx, strings.TrimSpace(kinds[0]))
	}

	var multi audit.MultiSink
	for _, kind := range kinds {
		s, err := c.openSink(ctx, strings.TrimSpace(kind))
		if err != nil {
			_ = multi.Close()
			return nil, err
		}
		multi = append(multi, s)
	}
	return multi, nil
}

func (c *Config) openSink(ctx context.Context, kind string) (audit.Sink, error) {
	switch kind {
	case SinkMemory:
		return audit.NewLedger(), nil
	case SinkDossier:
		return audit.NewDossierSink(c.CanonRoot), nil
	case SinkSQLite:
		dsn := c.DatabaseURL
		if dsn == "" {
			if err := os.MkdirAll(c.CanonRoot, 0o750); err != nil {
				return nil, fmt.Errorf("create canon root: %w", err)
			}
			dsn = filepath.Join(c.CanonRoot, "audit.db")
		}
		return audit.OpenSQLSink(ctx, audit.DialectSQLite, dsn)
	case SinkPostgres:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: postgres requires DATABASE_URL", audit.ErrSinkNotConfigured)
		}
		return audit.OpenSQLSink(ctx, audit.DialectPostgres, c.DatabaseURL)
	case SinkRedis:
		return audit.NewRedisSink(c.RedisAddr, c.RedisPassword, 0, ""), nil
	case SinkS3:
		if c.S3Bucket == "" {
			return nil, fmt.Errorf("%w: s3 requires AUDIT_S3_BUCKET", audit.ErrSinkNotConfigured)
		}
		return audit.NewS3Sink(ctx, audit.S3SinkConfig{
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3Endpoint,
		})
	}
	if f, ok := optionalSinks[kind]; ok {
		return f(ctx, c)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSink, kind)
}
