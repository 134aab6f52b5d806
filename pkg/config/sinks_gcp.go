//go:build gcp

package config

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/mirrornode/pkg/audit"
)

func init() {
	optionalSinks[SinkGCS] = func(ctx context.Context, c *Config) (audit.Sink, error) {
		if c.GCSBucket == "" {
			return nil, fmt.Errorf("%w: gcs requires AUDIT_GCS_BUCKET", audit.ErrSinkNotConfigured)
		}
		return audit.NewGCSSink(ctx, c.GCSBucket, c.GCSPrefix)
	}
}
