package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DossierSink appends records as NDJSON under
// <root>/dossiers/YYYY-MM/audit-<repo>-YYYY-MM-DD.ndjson and fsyncs each write.
type DossierSink struct {
	mu   sync.Mutex
	root string
}

func NewDossierSink(canonRoot string) *DossierSink {
	return &DossierSink{root: filepath.Join(canonRoot, "dossiers")}
}

func (d *DossierSink) Append(_ context.Context, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	monthDir := filepath.Join(d.root, rec.Timestamp.Format("2006-01"))
	name := fmt.Sprintf("audit-%s-%s.ndjson", sanitize(rec.Repo), rec.Timestamp.Format("2006-01-02"))

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(monthDir, 0o750); err != nil {
		return fmt.Errorf("create dossier dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(monthDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open dossier: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write dossier: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync dossier: %w", err)
	}
	return f.Close()
}

// ReadDossiers loads every record under a dossiers directory, oldest first.
func ReadDossiers(dir string) ([]Record, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && strings.HasSuffix(path, ".ndjson") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for lineNo := 1; scanner.Scan(); lineNo++ {
			var rec Record
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			records = append(records, rec)
		}
		err = scanner.Err()
		_ = f.Close()
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}

func sanitize(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r == ' ' {
			return '-'
		}
		return r
	}, s)
}
