// Package fetchapp wires configuration into the download pipeline and runs
// it behind the HTTP boundary or from the command line.
package fetchapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/magicaleks/onionfetch/internal/adapter/httpserver"
	"github.com/magicaleks/onionfetch/internal/config"
	"github.com/magicaleks/onionfetch/internal/domain"
	"github.com/magicaleks/onionfetch/internal/infra/archive"
	"github.com/magicaleks/onionfetch/internal/infra/cookies"
	"github.com/magicaleks/onionfetch/internal/infra/execrun"
	"github.com/magicaleks/onionfetch/internal/infra/paths"
	"github.com/magicaleks/onionfetch/internal/infra/tor"
	"github.com/magicaleks/onionfetch/internal/infra/ytdlp"
	"github.com/magicaleks/onionfetch/internal/usecase/download"
)

const shutdownTimeout = 30 * time.Second

type Application struct {
	cfg       *config.Config
	logger    *zap.Logger
	daemon    *tor.Process
	rotator   *tor.Controller
	probe     *tor.Probe
	downloads *download.Service
}

func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	outputDir := paths.ResolveDir(cfg.Fetch.OutputDir, "downloads", logger)
	cookieDir := paths.ResolveDir(cfg.Cookies.Dir, "cookies", logger)
	dataDir := paths.ResolveDir(cfg.Tor.DataDir, "tor_data", logger)

	runner := execrun.NewRunner(logger.Named("exec"))

	daemon := tor.NewProcess(tor.ProcessConfig{
		Binary:           cfg.Tor.Binary,
		SocksPort:        cfg.Tor.SocksPort,
		ControlPort:      cfg.Tor.ControlPort,
		BootstrapTimeout: cfg.Tor.BootstrapTimeout.Duration,
		DataDir:          dataDir,
	}, logger.Named("tor"))

	rotator := tor.NewController(
		cfg.Tor.ControlPort,
		cfg.Tor.DialTimeout.Duration,
		cfg.Tor.RotateGrace.Duration,
		daemon,
		logger.Named("control"),
	)

	store := cookies.NewStore(cookies.Config{
		Dir:        cookieDir,
		CurlBinary: cfg.Cookies.CurlBinary,
		TargetURL:  cfg.Cookies.TargetURL,
		Timeout:    cfg.Cookies.Timeout.Duration,
		Proxy:      cfg.CurlProxyURL(),
	}, runner, logger.Named("cookies"))

	fetcher := ytdlp.NewFetcher(ytdlp.Config{
		Binary:      cfg.Fetch.Binary,
		OutputDir:   outputDir,
		Impersonate: cfg.Fetch.Impersonate,
		Template:    cfg.Fetch.Template,
		Timeout:     cfg.Fetch.Timeout.Duration,
	}, runner, logger.Named("ytdlp"))

	deps := download.Deps{
		Daemon:   daemon,
		Rotator:  rotator,
		Cookies:  store,
		Fetcher:  fetcher,
		Packager: archive.NewPackager(cfg.Fetch.Extensions, logger.Named("archive")),
	}

	var probe *tor.Probe
	if cfg.Tor.ProbeExitIP {
		p, err := tor.NewProbe(cfg.Tor.SocksPort, cfg.Tor.ProbeURL, logger.Named("probe"))
		if err != nil {
			return nil, fmt.Errorf("exit probe: %w", err)
		}
		probe = p
		deps.Probe = p
	}

	downloads := download.NewService(deps, download.Options{
		OutputDir: outputDir,
		Proxy:     cfg.ProxyURL(),
		MaxLinks:  cfg.Batch.MaxLinks,
	}, logger.Named("download"))

	return &Application{
		cfg:       cfg,
		logger:    logger,
		daemon:    daemon,
		rotator:   rotator,
		probe:     probe,
		downloads: downloads,
	}, nil
}

// Serve runs the HTTP boundary until ctx is cancelled, then drains in-flight
// requests and makes sure no daemon outlives the process.
func (a *Application) Serve(ctx context.Context) error {
	api := httpserver.NewAPI(a.downloads, a.logger.Named("http"))
	server := httpserver.NewServer(a.cfg.ListenAddr(), api, a.cfg.Server.Secret, a.logger.Named("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Run)
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Download runs one batch in the foreground.
func (a *Application) Download(ctx context.Context, links []string) domain.BatchResult {
	return a.downloads.Download(ctx, links)
}

// Rotate brings the daemon up if needed, asks for a fresh circuit and stops
// the daemon again. The exit address is returned when probing is enabled.
func (a *Application) Rotate(ctx context.Context) (string, error) {
	defer a.Close()

	if err := a.rotator.Rotate(ctx); err != nil {
		return "", err
	}
	if a.probe == nil {
		return "", nil
	}
	return a.probe.ExitIP(ctx)
}

func (a *Application) Close() {
	if err := a.daemon.Stop(); err != nil {
		a.logger.Warn("tor stop failed", zap.Error(err))
	}
}
