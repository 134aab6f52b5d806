package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// MultiSink appends to every sink in order and fails on the first error.
// Earlier sinks keep what they wrote; a record is only considered emitted
// when all sinks accepted it.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, rec Record) error {
	if len(m) == 0 {
		return ErrSinkNotConfigured
	}
	for i, s := range m {
		if err := s.Append(ctx, rec); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// Close closes every member that holds resources.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
