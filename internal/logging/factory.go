package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Supported backends.
const (
	BackendSlog = "slog"
	BackendZap  = "zap"
)

// New builds a Logger for the named backend writing JSON lines to w at the
// given level ("debug", "info", "warn", "error"; empty means info).
func New(backend, level string, w io.Writer) (Logger, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendSlog:
		var lvl slog.Level
		if level != "" {
			if err := lvl.UnmarshalText([]byte(level)); err != nil {
				return nil, fmt.Errorf("bad log level %q: %w", level, err)
			}
		}
		h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
		return NewSlogLogger(slog.New(h)), nil
	case BackendZap:
		z, err := NewZapLogger(w, level)
		if err != nil {
			return nil, err
		}
		return z, nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", backend)
	}
}
