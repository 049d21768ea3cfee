package store

import (
	"log/slog"
)

// OpenWithFallback opens the durable store at path. When path is empty or
// the database cannot be opened it logs a warning and returns a Memory
// store, so the engine keeps working for the lifetime of the process.
func OpenWithFallback(path string, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		logger.Warn("no database path configured, using in-memory store")
		return NewMemory()
	}

	s, err := Open(path)
	if err != nil {
		logger.Warn("durable store unavailable, using in-memory store",
			"path", path,
			"error", err,
		)
		return NewMemory()
	}
	return s
}
