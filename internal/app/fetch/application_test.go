package fetchapp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/magicaleks/onionfetch/internal/config"
	"github.com/magicaleks/onionfetch/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Tor.Binary = filepath.Join(dir, "no-such-tor")
	cfg.Tor.DataDir = filepath.Join(dir, "tor_data")
	cfg.Tor.BootstrapTimeout = config.Duration{Duration: time.Second}
	cfg.Cookies.Dir = filepath.Join(dir, "cookies")
	cfg.Fetch.OutputDir = filepath.Join(dir, "out")
	cfg.Log.Dir = filepath.Join(dir, "logs")
	return cfg
}

func TestNewApplicationCreatesDirectories(t *testing.T) {
	cfg := testConfig(t)

	_, err := NewApplication(cfg, zap.NewNop())
	require.NoError(t, err)

	assert.DirExists(t, cfg.Fetch.OutputDir)
	assert.DirExists(t, cfg.Cookies.Dir)
	assert.DirExists(t, cfg.Tor.DataDir)
}

func TestNewApplicationWithProbe(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tor.ProbeExitIP = true

	app, err := NewApplication(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, app.probe)
}

func TestDownloadRejectsEmptyBatchWithoutDaemon(t *testing.T) {
	app, err := NewApplication(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	res := app.Download(context.Background(), []string{})

	assert.Equal(t, domain.ResultRejected, res.Kind)
	assert.Equal(t, domain.MsgNoLinks, res.Summary)
}

func TestDownloadReportsDaemonStartFailure(t *testing.T) {
	app, err := NewApplication(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	res := app.Download(context.Background(), []string{"https://www.tiktok.com/@u/video/1"})

	assert.Equal(t, domain.ResultFailed, res.Kind)
	assert.Equal(t, domain.MsgTorStart, res.Summary)
}

func TestRotateFailsWithoutDaemon(t *testing.T) {
	app, err := NewApplication(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	_, err = app.Rotate(context.Background())
	assert.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	app, err := NewApplication(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
