package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAdapterResponse_OKRejectsError(t *testing.T) {
	_, err := NewAdapterResponse(StatusOK, "gpt", nil, &AdapterError{Code: ErrorUnknown, Message: "boom"}, nil)
	require.ErrorIs(t, err, ErrContractViolation)
}

func TestNewAdapterResponse_Validation(t *testing.T) {
	tests := []struct {
		name   string
		status AdapterStatus
		nodeID string
		err    *AdapterError
		ok     bool
	}{
		{"ok without error", StatusOK, "gpt", nil, true},
		{"error with error", StatusError, "gpt", &AdapterError{Code: ErrorQuotaExceeded}, true},
		{"degraded without error", StatusDegraded, "gpt", nil, true},
		{"unknown status", AdapterStatus("maybe"), "gpt", nil, false},
		{"missing node", StatusOK, "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewAdapterResponse(tt.status, tt.nodeID, nil, tt.err, nil)
			if tt.ok {
				require.NoError(t, err)
				require.NotNil(t, r)
				assert.NotNil(t, r.Payload())
			} else {
				require.ErrorIs(t, err, ErrContractViolation)
			}
		})
	}
}

func TestAdapterResponse_Immutable(t *testing.T) {
	payload := map[string]any{"content": "yes"}
	r := MustAdapterResponse(StatusOK, "claude", payload, nil, nil)

	payload["content"] = "no"
	got := r.Payload()
	assert.Equal(t, "yes", got["content"])

	got["content"] = "mutated"
	assert.Equal(t, "yes", r.Payload()["content"])
}

func TestAdapterResponse_WireShape(t *testing.T) {
	latency := 1500 * time.Microsecond
	r := MustAdapterResponse(StatusError, "grok", map[string]any{"content": nil}, &AdapterError{
		Code:       ErrorModelUnavailable,
		Message:    "timeout",
		RetryAfter: ErrorModelUnavailable.RetryAfter(),
	}, &latency)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "error", wire["status"])
	assert.Equal(t, "grok", wire["node_id"])
	errBlock := wire["error"].(map[string]any)
	assert.Equal(t, "model_unavailable", errBlock["code"])
	assert.EqualValues(t, 300, errBlock["retry_after"])
	meta := wire["metadata"].(map[string]any)
	assert.EqualValues(t, 1.5, meta["latency_ms"])
	assert.Contains(t, meta, "timestamp")

	var back AdapterResponse
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, StatusError, back.Status())
	assert.Equal(t, ErrorModelUnavailable, back.Err().Code)
}

func TestAdapterResponse_UnmarshalRejectsIllegalEnvelope(t *testing.T) {
	cases := map[string]string{
		"ok with error":   `{"status":"ok","node_id":"x","payload":{},"error":{"code":"unknown_error","message":"m","retry_after":null}}`,
		"unknown status":  `{"status":"maybe","node_id":"x","payload":{},"error":null}`,
		"missing node id": `{"status":"ok","payload":{},"error":null}`,
		"empty node id":   `{"status":"unavailable","node_id":"","payload":{},"error":{"code":"model_unavailable","message":"m","retry_after":null}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var r AdapterResponse
			require.ErrorIs(t, json.Unmarshal([]byte(body), &r), ErrContractViolation)
		})
	}
}

func TestErrorCode_RetryAfter(t *testing.T) {
	assert.Equal(t, 3600, *ErrorQuotaExceeded.RetryAfter())
	assert.Equal(t, 300, *ErrorModelUnavailable.RetryAfter())
	assert.Nil(t, ErrorAuthNotConfigured.RetryAfter())
	assert.Nil(t, ErrorUnknown.RetryAfter())
}

func TestConsensusResult_VotersSorted(t *testing.T) {
	c := &ConsensusResult{Votes: map[string]*AdapterResponse{
		"theia":  MustAdapterResponse(StatusOK, "theia", nil, nil, nil),
		"claude": MustAdapterResponse(StatusOK, "claude", nil, nil, nil),
		"gpt":    MustAdapterResponse(StatusOK, "gpt", nil, nil, nil),
	}}
	assert.Equal(t, []string{"claude", "gpt", "theia"}, c.Voters())
}
