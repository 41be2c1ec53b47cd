// Package logging configures the CLI's slog backend: a tinted console
// handler, optionally fanned out to a timestamped JSON log file. The codec
// packages never log; only the command layer does.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// Setup installs the default slog logger. When fileDir is non-empty, log
// records are written both to stderr and to a timestamped JSON file inside
// fileDir.
func Setup(levelStr, fileDir string) error {
	level := parseLevel(levelStr)
	console := tint.NewHandler(os.Stderr, &tint.Options{Level: level})

	if fileDir == "" {
		slog.SetDefault(slog.New(console))
		return nil
	}

	dir := os.ExpandEnv(fileDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	name := fmt.Sprintf("chm_%s.log", time.Now().Format("20060102_150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}
	file := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(slogmulti.Fanout(console, file)))
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
