package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
)

// ErrNilResponse is reported when an adapter returns no envelope.
var ErrNilResponse = errors.New("adapter returned no response")

// SafeInvoke calls a.Invoke and turns a panic or a nil envelope into an
// unavailable response under the adapter's name. Adapters built on Base never
// need it; it guards other Adapter implementations.
func SafeInvoke(ctx context.Context, a Adapter, prompt string) (resp *contracts.AdapterResponse) {
	start := time.Now()
	name := a.Name()
	defer func() {
		if r := recover(); r != nil {
			resp = Unavailable(name, fmt.Errorf("%s: adapter panic: %v", name, r), time.Since(start))
		}
	}()
	resp = a.Invoke(ctx, prompt)
	if resp == nil {
		resp = Unavailable(name, fmt.Errorf("%s: %w", name, ErrNilResponse), time.Since(start))
	}
	return resp
}

// Unavailable builds an unavailable envelope regardless of how cause would
// classify.
func Unavailable(nodeID string, cause error, latency time.Duration) *contracts.AdapterResponse {
	if nodeID == "" {
		nodeID = "unnamed"
	}
	return contracts.MustAdapterResponse(contracts.StatusUnavailable, nodeID, placeholderPayload(), &contracts.AdapterError{
		Code:    contracts.ErrorUnknown,
		Message: cause.Error(),
	}, &latency)
}
