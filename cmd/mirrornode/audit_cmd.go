package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Mindburn-Labs/mirrornode/pkg/audit"
	"github.com/Mindburn-Labs/mirrornode/pkg/config"
)

type verifyReport struct {
	Dossier   string                `json:"dossier"`
	Verified  bool                  `json:"verified"`
	Records   int                   `json:"records"`
	Verdicts  map[audit.Verdict]int `json:"verdicts"`
	ChainHead string                `json:"chain_head,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// loadLedger replays dossier records into a fresh ledger, rejecting
// duplicates and invalid verdicts.
func loadLedger(ctx context.Context, dir string) (*audit.Ledger, []audit.Record, error) {
	records, err := audit.ReadDossiers(dir)
	if err != nil {
		return nil, nil, err
	}
	ledger := audit.NewLedger()
	for _, rec := range records {
		if !rec.Verdict.Valid() {
			return nil, nil, fmt.Errorf("record %s: invalid verdict %q", rec.AuditID, rec.Verdict)
		}
		if err := ledger.Append(ctx, rec); err != nil {
			return nil, nil, fmt.Errorf("record %s: %w", rec.AuditID, err)
		}
	}
	return ledger, records, ledger.Verify()
}

func defaultDossierDir() string {
	return filepath.Join(config.Load().CanonRoot, "dossiers")
}

// runAuditVerifyCmd implements `mirrornode audit-verify`.
//
// Exit codes:
//
//	0 = verification passed
//	1 = verification failed
//	2 = runtime error
func runAuditVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit-verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var dir string
	var jsonOutput bool
	cmd.StringVar(&dir, "dossier", "", "Dossiers directory (default $CANON_ROOT/dossiers)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dir == "" {
		dir = defaultDossierDir()
	}
	if _, err := os.Stat(dir); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	report := verifyReport{Dossier: dir, Verdicts: map[audit.Verdict]int{}}
	ledger, records, err := loadLedger(context.Background(), dir)
	if err != nil {
		report.Error = err.Error()
	} else {
		report.Verified = true
		report.Records = len(records)
		report.ChainHead = ledger.ChainHead()
		for _, rec := range records {
			report.Verdicts[rec.Verdict]++
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else if report.Verified {
		_, _ = fmt.Fprintf(stdout, "%sVERIFIED%s %d records in %s\n", ColorBold+ColorGreen, ColorReset, report.Records, dir)
		for _, v := range []audit.Verdict{audit.VerdictSuccess, audit.VerdictFailure, audit.VerdictBlocked, audit.VerdictEscalated} {
			if n := report.Verdicts[v]; n > 0 {
				_, _ = fmt.Fprintf(stdout, "  %-10s %d\n", v, n)
			}
		}
		_, _ = fmt.Fprintf(stdout, "  chain head %s\n", report.ChainHead)
	} else {
		_, _ = fmt.Fprintf(stdout, "FAILED %s: %s\n", dir, report.Error)
	}

	if !report.Verified {
		return 1
	}
	return 0
}

// runAuditExportCmd implements `mirrornode audit-export`.
func runAuditExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit-export", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var dir, out, repo, since, until string
	cmd.StringVar(&dir, "dossier", "", "Dossiers directory (default $CANON_ROOT/dossiers)")
	cmd.StringVar(&out, "out", "", "Output zip path (REQUIRED)")
	cmd.StringVar(&repo, "repo", "", "Only records of this repo")
	cmd.StringVar(&since, "since", "", "RFC 3339 lower bound")
	cmd.StringVar(&until, "until", "", "RFC 3339 upper bound")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if out == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --out is required")
		return 2
	}
	if dir == "" {
		dir = defaultDossierDir()
	}

	req := audit.ExportRequest{Repo: repo}
	for _, b := range []struct {
		raw string
		dst *time.Time
	}{{since, &req.StartTime}, {until, &req.EndTime}} {
		if b.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, b.raw)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: invalid time %q: %v\n", b.raw, err)
			return 2
		}
		*b.dst = t
	}

	ctx := context.Background()
	ledger, _, err := loadLedger(ctx, dir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	pack, checksum, err := audit.NewExporter(ledger).GeneratePack(ctx, req)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := os.WriteFile(out, pack, 0o640); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: write pack: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "exported %s (sha256 %s)\n", out, checksum)
	return 0
}
