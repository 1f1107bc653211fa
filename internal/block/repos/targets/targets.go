// Package targets loads the set of domains to block from a plain text
// file, one domain per line, falling back to a built-in list when the
// file does not exist.
package targets

import (
	"os"

	logpkg "github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
)

// BuiltinSource is the Source attached to targets from the default list.
const BuiltinSource = "builtin"

// DefaultList is the fallback target set used when no targets file is
// present on disk.
var DefaultList = []string{
	"facebook.com",
	"instagram.com",
	"tiktok.com",
	"twitter.com",
	"x.com",
	"reddit.com",
	"youtube.com",
}

// Load reads the targets file at path. A missing file is not an error:
// the built-in default list is returned instead, with a warning log.
// Any other read or parse failure is fatal to the caller.
func Load(path string, logger logpkg.Logger) ([]domain.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn(map[string]any{"path": path}, "targets file missing, using built-in list")
			return defaultTargets(logger), nil
		}
		return nil, err
	}
	defer f.Close()

	return ParsePlainList(f, path, logger)
}

// defaultTargets materializes DefaultList as validated targets.
func defaultTargets(logger logpkg.Logger) []domain.Target {
	out := make([]domain.Target, 0, len(DefaultList))
	for _, name := range DefaultList {
		t, err := domain.NewTarget(name, BuiltinSource)
		if err != nil {
			// DefaultList is compile-time data; a bad entry is a bug.
			logger.Error(map[string]any{"name": name, "error": err.Error()}, "invalid builtin target")
			continue
		}
		out = append(out, t)
	}
	return out
}
