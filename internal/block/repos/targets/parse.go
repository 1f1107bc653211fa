package targets

import (
	"bufio"
	"io"
	"strings"

	logpkg "github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
)

// ParsePlainList parses a simple newline-delimited list of domains into
// Target values.
//
// Behavior:
// - Supports comments starting with '#' (inline or whole-line)
// - Trims surrounding whitespace and removes trailing dots
// - Skips empty lines after trimming/stripping comments
// - De-duplicates by canonical name while preserving first-seen order
// - Skips tokens that are not FQDN-shaped, with a debug log
// - Each target is attributed to the provided source
func ParsePlainList(r io.Reader, source string, logger logpkg.Logger) ([]domain.Target, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]domain.Target, 0, 64)
	logger.Debug(map[string]any{"source": source}, "parse_targets_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		// Remove potential BOM at start of first token
		line = strings.TrimPrefix(line, "\uFEFF")

		// Detect empty or full-line comment before stripping inline comments
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}

		// Strip inline comments
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}

		s := strings.TrimSpace(line)

		tgt, err := domain.NewTarget(s, source)
		if err != nil {
			logger.Debug(map[string]any{"line": lineNum, "raw": s, "error": err.Error()}, "skip_invalid_target")
			continue
		}
		if !isValidFQDN(tgt.Name) {
			// skip obviously invalid tokens (single labels, over-long names)
			logger.Debug(map[string]any{"line": lineNum, "name": tgt.Name}, "skip_invalid_fqdn")
			continue
		}

		if _, ok := seen[tgt.Name]; ok {
			logger.Debug(map[string]any{"line": lineNum, "name": tgt.Name}, "skip_duplicate")
			continue
		}
		out = append(out, tgt)
		seen[tgt.Name] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_targets_scan_error")
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_targets_done")
	return out, nil
}
