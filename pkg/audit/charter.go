package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

const (
	Unchartered     = "UNCHARTERED"
	UnknownRevision = "UNKNOWN"
)

// CharterHash returns the SHA-256 of <canonRoot>/charters/<REPO>.md, where REPO
// is upper-cased with dashes turned into underscores, or UNCHARTERED.
func CharterHash(canonRoot, repo string) string {
	if canonRoot == "" || repo == "" {
		return Unchartered
	}
	name := strings.ReplaceAll(strings.ToUpper(repo), "-", "_") + ".md"
	data, err := os.ReadFile(filepath.Join(canonRoot, "charters", name))
	if err != nil {
		return Unchartered
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var (
	revisionOnce sync.Once
	revision     string
)

// RepoHash resolves the current git commit once per process.
func RepoHash() string {
	revisionOnce.Do(func() {
		out, err := exec.Command("git", "rev-parse", "HEAD").Output()
		if err != nil {
			revision = UnknownRevision
			return
		}
		revision = strings.TrimSpace(string(out))
		if revision == "" {
			revision = UnknownRevision
		}
	})
	return revision
}
