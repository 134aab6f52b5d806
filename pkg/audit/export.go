package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTimeRange is returned when start time is after end time.
	ErrInvalidTimeRange = errors.New("audit: start_time must be before end_time")
	// ErrLedgerNotConfigured is returned when export is invoked without a ledger.
	ErrLedgerNotConfigured = errors.New("audit: ledger not configured (fail-closed)")
)

// ExportRequest defines what to export. Zero fields match everything.
type ExportRequest struct {
	Repo      string    `json:"repo,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Exporter builds evidence packs from a ledger.
type Exporter struct {
	ledger *Ledger
	clock  func() time.Time
}

func NewExporter(l *Ledger) *Exporter {
	return &Exporter{ledger: l, clock: time.Now}
}

// GeneratePack creates a zip holding the matching sealed entries and a
// manifest, and returns it with its SHA-256 checksum. The ledger is verified
// first; a broken chain is never exported.
func (e *Exporter) GeneratePack(_ context.Context, req ExportRequest) ([]byte, string, error) {
	if !req.StartTime.IsZero() && !req.EndTime.IsZero() && req.StartTime.After(req.EndTime) {
		return nil, "", ErrInvalidTimeRange
	}
	if e == nil || e.ledger == nil {
		return nil, "", ErrLedgerNotConfigured
	}
	if err := e.ledger.Verify(); err != nil {
		return nil, "", err
	}

	e.ledger.mu.RLock()
	var entries []*LedgerEntry
	for _, le := range e.ledger.entries {
		if req.matches(le.Record) {
			entries = append(entries, le)
		}
	}
	chainHead := e.ledger.chainHead
	e.ledger.mu.RUnlock()

	entriesJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, "", err
	}

	generatedAt := e.clock().UTC()
	manifest := map[string]any{
		"repo":         req.Repo,
		"generated_at": generatedAt,
		"record_count": len(entries),
		"chain_head":   chainHead,
		"period": map[string]any{
			"start": req.StartTime,
			"end":   req.EndTime,
		},
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("audit: failed to marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	files := []struct {
		name string
		data []byte
	}{
		{"entries.json", entriesJSON},
		{"manifest.json", manifestJSON},
		{"README.txt", []byte(fmt.Sprintf("Audit evidence pack for %s\nGenerated at %s\n", req.Repo, generatedAt.Format(time.RFC3339)))},
	}
	for _, file := range files {
		f, err := w.Create(file.name)
		if err != nil {
			return nil, "", err
		}
		if _, err := f.Write(file.data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	hash := sha256.Sum256(zipBytes)
	return zipBytes, hex.EncodeToString(hash[:]), nil
}

func (r ExportRequest) matches(rec Record) bool {
	if r.Repo != "" && rec.Repo != r.Repo {
		return false
	}
	if !r.StartTime.IsZero() && rec.Timestamp.Before(r.StartTime) {
		return false
	}
	if !r.EndTime.IsZero() && rec.Timestamp.After(r.EndTime) {
		return false
	}
	return true
}
