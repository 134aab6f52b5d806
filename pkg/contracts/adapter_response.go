package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrContractViolation is returned when an envelope would break the locked contract.
var ErrContractViolation = errors.New("adapter response contract violation")

// AdapterStatus is the coarse outcome of one adapter invocation.
type AdapterStatus string

const (
	StatusOK          AdapterStatus = "ok"
	StatusDegraded    AdapterStatus = "degraded"
	StatusError       AdapterStatus = "error"
	StatusUnavailable AdapterStatus = "unavailable"
)

// Valid reports whether s is one of the four envelope statuses.
func (s AdapterStatus) Valid() bool {
	switch s {
	case StatusOK, StatusDegraded, StatusError, StatusUnavailable:
		return true
	}
	return false
}

// ErrorCode is the closed taxonomy every provider failure collapses into.
type ErrorCode string

const (
	ErrorQuotaExceeded     ErrorCode = "quota_exceeded"
	ErrorAuthNotConfigured ErrorCode = "auth_not_configured"
	ErrorModelUnavailable  ErrorCode = "model_unavailable"
	ErrorUnknown           ErrorCode = "unknown_error"
)

// RetryAfter returns the retry hint in seconds for the code, or nil when the
// failure is not retryable.
func (c ErrorCode) RetryAfter() *int {
	var secs int
	switch c {
	case ErrorQuotaExceeded:
		secs = 3600
	case ErrorModelUnavailable:
		secs = 300
	default:
		return nil
	}
	return &secs
}

// AdapterError is the error block of a non-ok envelope.
type AdapterError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	RetryAfter *int      `json:"retry_after"`
}

// ResponseMetadata is stamped on every envelope at construction.
type ResponseMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	LatencyMs *float64  `json:"latency_ms"`
}

// AdapterResponse is the canonical adapter response envelope.
// It is LOCKED: values are only produced by NewAdapterResponse and expose
// read accessors, so an envelope cannot change after it is built.
type AdapterResponse struct {
	status   AdapterStatus
	nodeID   string
	payload  map[string]any
	err      *AdapterError
	metadata ResponseMetadata
}

// NewAdapterResponse builds an envelope, enforcing status == ok => error == nil.
// A nil latency is recorded as unknown.
func NewAdapterResponse(status AdapterStatus, nodeID string, payload map[string]any, adapterErr *AdapterError, latency *time.Duration) (*AdapterResponse, error) {
	if err := check(status, nodeID, adapterErr); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}

	r := &AdapterResponse{
		status:  status,
		nodeID:  nodeID,
		payload: copyMap(payload),
		metadata: ResponseMetadata{
			Timestamp: time.Now().UTC(),
		},
	}
	if adapterErr != nil {
		e := *adapterErr
		r.err = &e
	}
	if latency != nil {
		ms := float64(latency.Microseconds()) / 1000.0
		r.metadata.LatencyMs = &ms
	}
	return r, nil
}

// check holds the invariants shared by construction and decoding.
func check(status AdapterStatus, nodeID string, adapterErr *AdapterError) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrContractViolation, status)
	}
	if status == StatusOK && adapterErr != nil {
		return fmt.Errorf("%w: error must be null when status is 'ok'", ErrContractViolation)
	}
	if nodeID == "" {
		return fmt.Errorf("%w: node_id is required", ErrContractViolation)
	}
	return nil
}

// MustAdapterResponse is NewAdapterResponse for call sites whose arguments are
// known to satisfy the contract. It panics on violation.
func MustAdapterResponse(status AdapterStatus, nodeID string, payload map[string]any, adapterErr *AdapterError, latency *time.Duration) *AdapterResponse {
	r, err := NewAdapterResponse(status, nodeID, payload, adapterErr, latency)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *AdapterResponse) Status() AdapterStatus { return r.status }
func (r *AdapterResponse) NodeID() string        { return r.nodeID }

// Payload returns a copy of the payload.
func (r *AdapterResponse) Payload() map[string]any { return copyMap(r.payload) }

// Err returns a copy of the error block, or nil for ok responses.
func (r *AdapterResponse) Err() *AdapterError {
	if r.err == nil {
		return nil
	}
	e := *r.err
	return &e
}

func (r *AdapterResponse) Metadata() ResponseMetadata { return r.metadata }

// OK reports whether the envelope is a successful answer.
func (r *AdapterResponse) OK() bool { return r.status == StatusOK }

type adapterResponseJSON struct {
	Status   AdapterStatus    `json:"status"`
	NodeID   string           `json:"node_id"`
	Payload  map[string]any   `json:"payload"`
	Error    *AdapterError    `json:"error"`
	Metadata ResponseMetadata `json:"metadata"`
}

// MarshalJSON renders the locked wire shape.
func (r *AdapterResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(adapterResponseJSON{
		Status:   r.status,
		NodeID:   r.nodeID,
		Payload:  r.payload,
		Error:    r.err,
		Metadata: r.metadata,
	})
}

// UnmarshalJSON decodes an envelope and re-applies the construction checks.
func (r *AdapterResponse) UnmarshalJSON(data []byte) error {
	var raw adapterResponseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := check(raw.Status, raw.NodeID, raw.Error); err != nil {
		return err
	}
	if raw.Payload == nil {
		raw.Payload = map[string]any{}
	}
	*r = AdapterResponse{
		status:   raw.Status,
		nodeID:   raw.NodeID,
		payload:  raw.Payload,
		err:      raw.Error,
		metadata: raw.Metadata,
	}
	return nil
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
