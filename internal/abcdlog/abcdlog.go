// Package abcdlog builds the shared slog.Logger every ABCD process
// starts with: JSON handler, module name attribute, and the trace
// level used for wire-level frame forensics.
package abcdlog

import (
	"io"
	"log/slog"
	"os"

	"abcd.dev/abcd/internal/config"
)

// New builds a logger writing JSON records to w (os.Stderr if nil),
// at the given level, tagged with the module name so multi-process
// deployments can demux a shared log sink by module.
func New(w io.Writer, module string, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	})
	return slog.New(handler).With("module", module)
}

// NewFromLevelString is a convenience wrapper around New that parses
// level using config.ParseLogLevel, falling back to Info on error.
func NewFromLevelString(w io.Writer, module, level string) *slog.Logger {
	parsed, err := config.ParseLogLevel(level)
	if err != nil {
		parsed = slog.LevelInfo
	}
	return New(w, module, parsed)
}
