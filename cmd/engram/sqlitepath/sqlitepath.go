// Package sqlitepath resolves the path of the engram SQLite database for
// commands that default to the embedded vector store.
package sqlitepath

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/engramlabs/engram/pkg/dotdir"
)

const dbFile = "engram.db"

// ResolveSQLitePath returns the SQLite database path to use. Resolution
// order: explicit override, ENGRAM_SQLITE / ENGRAM_DB environment
// variables, the first existing candidate path, and finally a fresh
// engram.db inside the resolved .engram/ directory (or the working
// directory when no .engram/ exists). A fresh path is not an error: the
// sqlite driver creates the database on first open.
func ResolveSQLitePath(override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return override, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("ENGRAM_SQLITE")); envPath != "" {
		return envPath, nil
	}
	if envPath := strings.TrimSpace(os.Getenv("ENGRAM_DB")); envPath != "" {
		return envPath, nil
	}

	for _, candidate := range sqliteCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	ddm := dotdir.NewManager()
	target, err := ddm.Target("")
	if err != nil {
		return "", err
	}
	if target != "" {
		return filepath.Join(target, dbFile), nil
	}

	return dbFile, nil
}

func sqliteCandidates() []string {
	candidates := []string{
		dbFile,
		"engram.sqlite",
		filepath.Join(".engram", dbFile),
		filepath.Join(".engram", "engram.sqlite"),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append([]string{
			filepath.Join(home, ".engram", dbFile),
			filepath.Join(home, ".engram", "engram.sqlite"),
		}, candidates...)
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append([]string{
			filepath.Join(xdgHome, "engram", dbFile),
			filepath.Join(xdgHome, "engram", "engram.sqlite"),
		}, candidates...)
	}

	return candidates
}
