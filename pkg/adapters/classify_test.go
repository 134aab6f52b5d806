package adapters

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want contracts.ErrorCode
	}{
		{errors.New("Quota exhausted for org"), contracts.ErrorQuotaExceeded},
		{errors.New("status 429"), contracts.ErrorQuotaExceeded},
		{errors.New("Authentication failed"), contracts.ErrorAuthNotConfigured},
		{errors.New("missing API key"), contracts.ErrorAuthNotConfigured},
		{errors.New("read timeout"), contracts.ErrorModelUnavailable},
		{errors.New("Service Unavailable"), contracts.ErrorModelUnavailable},
		{errors.New("ＱＵＯＴＡ"), contracts.ErrorQuotaExceeded}, // full-width folds under NFKC
		{errors.New("something else"), contracts.ErrorUnknown},
		{context.DeadlineExceeded, contracts.ErrorModelUnavailable},
		{fmt.Errorf("wrapped: %w", ErrAuthNotConfigured), contracts.ErrorAuthNotConfigured},
		{&ProviderError{Provider: "gpt", StatusCode: 503, Err: ErrModelUnavailable}, contracts.ErrorModelUnavailable},
		{nil, contracts.ErrorUnknown},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_QuotaBeforeAuth(t *testing.T) {
	// message order matters: quota is checked first
	assert.Equal(t, contracts.ErrorQuotaExceeded, Classify(errors.New("auth quota reached")))
}

func TestErrorForStatus(t *testing.T) {
	assert.Equal(t, contracts.ErrorQuotaExceeded, Classify(errorForStatus("gpt", 429)))
	assert.Equal(t, contracts.ErrorAuthNotConfigured, Classify(errorForStatus("gpt", 401)))
	assert.Equal(t, contracts.ErrorModelUnavailable, Classify(errorForStatus("gpt", 503)))
	assert.Equal(t, contracts.ErrorUnknown, Classify(errorForStatus("gpt", 500)))
}
