package paths

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ResolveDir returns a usable directory: preferred if it can be created,
// otherwise ~/.onionfetch/<fallbackRel>. When neither works preferred is
// returned and the caller's own MkdirAll will surface the error.
func ResolveDir(preferred, fallbackRel string, logger *zap.Logger) string {
	if err := os.MkdirAll(preferred, 0o755); err == nil {
		return preferred
	}

	home, err := os.UserHomeDir()
	fallbackDir := "."
	if err == nil && home != "" {
		fallbackDir = filepath.Join(home, ".onionfetch")
	} else {
		logger.Warn("home dir unavailable, using current directory for fallback storage")
	}

	fallbackPath := filepath.Join(fallbackDir, fallbackRel)
	if err := os.MkdirAll(fallbackPath, 0o755); err != nil {
		logger.Error("failed to create fallback dir", zap.String("path", fallbackPath), zap.Error(err))
		return preferred
	}

	logger.Warn("using fallback dir", zap.String("path", fallbackPath), zap.String("preferred", preferred))
	return fallbackPath
}
