// Package ytdlp drives the yt-dlp executable for a single link at a time.
package ytdlp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/magicaleks/onionfetch/internal/domain"
	"github.com/magicaleks/onionfetch/internal/impls"
)

type Config struct {
	Binary      string
	OutputDir   string
	Impersonate string

	// Template names output files after the remote item, e.g. "tiktok_%(id)s.%(ext)s".
	Template string
	Timeout  time.Duration
}

type Fetcher struct {
	cfg    Config
	runner impls.CommandRunner
	logger *zap.Logger
}

func NewFetcher(cfg Config, runner impls.CommandRunner, logger *zap.Logger) *Fetcher {
	return &Fetcher{cfg: cfg, runner: runner, logger: logger}
}

// Args is the yt-dlp command line for req.
func (f *Fetcher) Args(req domain.FetchRequest) []string {
	args := []string{"--cookies", req.CookiePath}
	if f.cfg.Impersonate != "" {
		args = append(args, "--impersonate", f.cfg.Impersonate)
	}
	return append(args,
		"--proxy", req.Proxy,
		"--force-overwrites",
		"--no-abort-on-error",
		"--newline",
		"-o", filepath.Join(f.cfg.OutputDir, f.cfg.Template),
		req.Link,
	)
}

// Fetch downloads one link. Only a zero exit status counts as success.
func (f *Fetcher) Fetch(ctx context.Context, req domain.FetchRequest) error {
	if err := os.MkdirAll(f.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	log := f.logger.With(zap.String("link", req.Link))
	log.Info("fetching")

	code, err := f.runner.Run(ctx, domain.Command{
		Name:    f.cfg.Binary,
		Args:    f.Args(req),
		Timeout: f.cfg.Timeout,
		OnLine: func(line string) {
			log.Info(line, zap.String("source", "yt-dlp"))
		},
	})
	if err != nil {
		log.Error("yt-dlp failed", zap.Error(err))
		return fmt.Errorf("fetch %s: %w", req.Link, err)
	}
	if code != 0 {
		log.Warn("yt-dlp exited with non-zero code", zap.Int("code", code))
		return fmt.Errorf("fetch %s: yt-dlp exited with code %d", req.Link, code)
	}

	log.Info("fetched")
	return nil
}

var _ impls.MediaFetcher = (*Fetcher)(nil)
