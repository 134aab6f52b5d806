// Package audit implements the audit emission gate: a fail-closed barrier that
// refuses to let an operation complete unless its audit record was persisted.
package audit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmissionFailed means a record could not be persisted. Callers must halt.
	ErrEmissionFailed = errors.New("audit emission failed - execution halted")
	// ErrSinkNotConfigured is returned by a gate without a sink.
	ErrSinkNotConfigured = errors.New("fail-closed: audit sink not configured")
)

// Verdict is the outcome recorded for an audited operation.
type Verdict string

const (
	VerdictSuccess   Verdict = "SUCCESS"
	VerdictFailure   Verdict = "FAILURE"
	VerdictBlocked   Verdict = "BLOCKED"
	VerdictEscalated Verdict = "ESCALATED"
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictSuccess, VerdictFailure, VerdictBlocked, VerdictEscalated:
		return true
	}
	return false
}

// Record is one append-only audit record.
type Record struct {
	Timestamp   time.Time      `json:"timestamp"`
	Repo        string         `json:"repo"`
	RepoHash    string         `json:"repo_hash"`
	CharterHash string         `json:"charter_hash"`
	EventType   string         `json:"event_type"`
	Actor       string         `json:"actor"`
	Verdict     Verdict        `json:"verdict"`
	Evidence    map[string]any `json:"evidence"`
	AuditID     string         `json:"audit_id"`
}

// Entry is what a caller supplies; the gate stamps the rest.
type Entry struct {
	Repo      string // defaults to the gate repo
	EventType string // execution|deployment|schema_change|agent_invocation
	Actor     string // human|agent|system
	Verdict   Verdict
	Evidence  map[string]any
}

// Sink durably appends records. Append must return only after the record is
// persisted; any error is treated as an emission failure.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Append(ctx context.Context, rec Record) error { return f(ctx, rec) }
