package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gowebpki/jcs"
)

var (
	ErrRecordNotFound = errors.New("audit record not found")
	ErrChainBroken    = errors.New("hash chain is broken")
	ErrDuplicateID    = errors.New("mutation of existing record attempted")
)

const genesis = "genesis"

// LedgerEntry is a record sealed into the hash chain.
type LedgerEntry struct {
	Sequence     uint64 `json:"sequence"`
	Record       Record `json:"record"`
	RecordHash   string `json:"record_hash"`
	PreviousHash string `json:"previous_hash"`
	EntryHash    string `json:"entry_hash"`
}

// Ledger is an in-memory, append-only, hash-chained Sink.
type Ledger struct {
	mu        sync.RWMutex
	entries   []*LedgerEntry
	byID      map[string]*LedgerEntry
	chainHead string
}

func NewLedger() *Ledger {
	return &Ledger{
		byID:      make(map[string]*LedgerEntry),
		chainHead: genesis,
	}
}

// Append seals rec onto the chain.
func (l *Ledger) Append(_ context.Context, rec Record) error {
	recordHash, err := canonicalHash(rec)
	if err != nil {
		return fmt.Errorf("failed to hash record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[rec.AuditID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.AuditID)
	}

	entry := &LedgerEntry{
		Sequence:     uint64(len(l.entries)) + 1,
		Record:       rec,
		RecordHash:   recordHash,
		PreviousHash: l.chainHead,
	}
	entry.EntryHash, err = entryHash(entry)
	if err != nil {
		return fmt.Errorf("failed to compute entry hash: %w", err)
	}

	l.entries = append(l.entries, entry)
	l.byID[rec.AuditID] = entry
	l.chainHead = entry.EntryHash
	return nil
}

// Get returns the entry sealing auditID.
func (l *Ledger) Get(auditID string) (*LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.byID[auditID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return e, nil
}

// Records returns all records in append order.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Record
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Ledger) ChainHead() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chainHead
}

// Verify recomputes every hash and link.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return VerifyChain(l.entries)
}

// VerifyChain checks a sequence of sealed entries, e.g. one read back from disk.
func VerifyChain(entries []*LedgerEntry) error {
	prev := genesis
	for i, e := range entries {
		if e.Sequence != uint64(i)+1 {
			return fmt.Errorf("%w: sequence gap at %d", ErrChainBroken, i)
		}
		if e.PreviousHash != prev {
			return fmt.Errorf("%w: entry %d links to %s, want %s", ErrChainBroken, e.Sequence, e.PreviousHash, prev)
		}
		recordHash, err := canonicalHash(e.Record)
		if err != nil {
			return err
		}
		if recordHash != e.RecordHash {
			return fmt.Errorf("%w: record %s was modified", ErrChainBroken, e.Record.AuditID)
		}
		h, err := entryHash(e)
		if err != nil {
			return err
		}
		if h != e.EntryHash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, e.Sequence)
		}
		prev = e.EntryHash
	}
	return nil
}

func canonicalHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	sum := sha256.Sum256(canon)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

func entryHash(e *LedgerEntry) (string, error) {
	return canonicalHash(struct {
		Sequence     uint64 `json:"sequence"`
		RecordHash   string `json:"record_hash"`
		PreviousHash string `json:"previous_hash"`
	}{e.Sequence, e.RecordHash, e.PreviousHash})
}
