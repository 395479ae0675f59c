// Package sqlitepath resolves where "threads serve" keeps its SQLite database
// when no path is configured.
package sqlitepath

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/threads/pkg/dotdir"
)

const dbName = "threads.db"

// ResolveSQLitePath returns override when set, then THREADS_DB, then the
// first existing candidate database. With none found it returns threads.db
// inside the .threads/ directory resolved from configDir.
func ResolveSQLitePath(override, configDir string) (string, error) {
	if override != "" {
		return override, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("THREADS_DB")); envPath != "" {
		return envPath, nil
	}

	for _, candidate := range sqliteCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return dotdir.NewManager().Path(configDir, dbName)
}

func sqliteCandidates() []string {
	candidates := []string{
		dbName,
		filepath.Join(".threads", dbName),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".threads", dbName))
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append([]string{filepath.Join(xdgHome, "threads", dbName)}, candidates...)
	}

	return candidates
}
