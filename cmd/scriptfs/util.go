package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// excludeArg is a repeatable string flag, used for both -p and -o.
type excludeArg []string

func (s *excludeArg) String() string {
	return fmt.Sprint(*s)
}

func (s *excludeArg) Set(value string) error {
	*s = append(*s, strings.TrimSpace(value))

	return nil
}

func parseLogLevel(levelStr string) (slog.Level, error) {
	switch strings.TrimSpace(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return defaultLogLevel, errArgInvalidLogLevel
	}
}

// isInside reports whether path is equal to or nested under root.
func isInside(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)

	if root == path {
		return true
	}

	rel, err := filepath.Rel(root, path)

	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
