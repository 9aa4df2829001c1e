package cookies

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/magicaleks/onionfetch/internal/domain"
	"github.com/magicaleks/onionfetch/internal/impls"
)

const (
	filePrefix = "cookie_"
	fileSuffix = ".txt"
)

type Config struct {
	Dir        string
	CurlBinary string
	TargetURL  string
	Timeout    time.Duration

	// Proxy routes the cookie request through the anonymizing daemon.
	Proxy string
}

// Store keeps a directory of cookie_<unixMillis>.txt files. Files are never
// deleted here; any existing file is considered interchangeable.
type Store struct {
	cfg    Config
	runner impls.CommandRunner
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(cfg Config, runner impls.CommandRunner, logger *zap.Logger) *Store {
	return &Store{
		cfg:    cfg,
		runner: runner,
		logger: logger,
		now:    time.Now,
	}
}

// Args is the curl command line that writes into file.
func (s *Store) Args(file string) []string {
	args := []string{
		"-c", file,
		"-b", file,
		"-L", s.cfg.TargetURL,
		"--compressed",
		"--insecure",
		"--silent",
	}
	if s.cfg.Proxy != "" {
		args = append(args, "--proxy", s.cfg.Proxy)
	}
	return args
}

// Generate mints a fresh cookie file. It succeeds only if the file exists
// and is non-empty once curl has exited.
func (s *Store) Generate(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}

	file := filepath.Join(s.cfg.Dir, fmt.Sprintf("%s%d%s", filePrefix, s.now().UnixMilli(), fileSuffix))

	code, err := s.runner.Run(ctx, domain.Command{
		Name:    s.cfg.CurlBinary,
		Args:    s.Args(file),
		Timeout: s.cfg.Timeout,
		OnLine: func(line string) {
			s.logger.Debug(line, zap.String("source", "curl"))
		},
	})
	if err != nil {
		return fmt.Errorf("generate cookie: %w", err)
	}
	if code != 0 {
		s.logger.Warn("curl exited with non-zero code", zap.Int("code", code))
	}

	info, err := os.Stat(file)
	if err != nil {
		return fmt.Errorf("generate cookie: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("generate cookie: %s is empty", file)
	}

	s.logger.Info("cookie generated", zap.String("path", file))
	return nil
}

// Random returns the path of an arbitrary non-empty cookie file.
func (s *Store) Random() (string, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return "", domain.ErrNoCookies
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		// An empty file is left behind by a failed curl run and is not usable.
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		files = append(files, filepath.Join(s.cfg.Dir, name))
	}

	if len(files) == 0 {
		return "", domain.ErrNoCookies
	}
	return files[rand.Intn(len(files))], nil
}

var _ impls.CookieStore = (*Store)(nil)
