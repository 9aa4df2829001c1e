package tor

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/magicaleks/onionfetch/internal/domain"
	"github.com/magicaleks/onionfetch/internal/impls"
	"github.com/magicaleks/onionfetch/internal/infra/execrun"
)

// BootstrapMarker is printed by the daemon once its first circuit is usable.
const BootstrapMarker = "Bootstrapped 100%"

const stopTimeout = 5 * time.Second

type ProcessConfig struct {
	Binary           string
	SocksPort        int
	ControlPort      int
	BootstrapTimeout time.Duration

	// DataDir keeps our daemon's state apart from a system-wide instance.
	DataDir string
}

// Process manages the tor subprocess lifecycle. At most one daemon is owned
// at a time; the handle never leaves this type.
type Process struct {
	cfg    ProcessConfig
	logger *zap.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

func NewProcess(cfg ProcessConfig, logger *zap.Logger) *Process {
	return &Process{cfg: cfg, logger: logger}
}

// Args is the daemon command line without the binary.
func (p *Process) Args() []string {
	args := []string{
		"--SocksPort", strconv.Itoa(p.cfg.SocksPort),
		"--ControlPort", strconv.Itoa(p.cfg.ControlPort),
		"--CookieAuthentication", "0",
	}
	if p.cfg.DataDir != "" {
		args = append(args, "--DataDirectory", p.cfg.DataDir)
	}
	return args
}

// Start spawns the daemon and blocks until the bootstrap marker shows up in
// its output. Starting an already running daemon is a no-op.
// On timeout or early exit the subprocess is killed.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.runningLocked() {
		p.logger.Info("tor already running", zap.Int("pid", p.cmd.Process.Pid))
		return nil
	}

	if err := checkPortsFree(p.cfg.SocksPort, p.cfg.ControlPort); err != nil {
		return domain.ErrCircuit{Op: "start", Err: err}
	}

	cmd := exec.Command(p.cfg.Binary, p.Args()...)
	cmd.SysProcAttr = execrun.SysProcAttr()
	cmd.WaitDelay = stopTimeout

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return domain.ErrCircuit{Op: "start", Err: err}
	}

	p.logger.Info("starting tor",
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("socks_port", p.cfg.SocksPort),
		zap.Int("control_port", p.cfg.ControlPort))

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		_ = pw.Close()
		close(done)
	}()

	ready := make(chan struct{})
	go func() {
		var once sync.Once
		// Keeps draining after bootstrap so the daemon never blocks on a full pipe.
		execrun.ScanLines(pr, func(line string) {
			p.logger.Debug(line, zap.String("source", "tor"))
			if strings.Contains(line, BootstrapMarker) {
				once.Do(func() { close(ready) })
			}
		})
	}()

	timer := time.NewTimer(p.cfg.BootstrapTimeout)
	defer timer.Stop()

	select {
	case <-ready:
		p.cmd = cmd
		p.done = done
		p.logger.Info("tor bootstrapped", zap.Int("pid", cmd.Process.Pid))
		return nil
	case <-done:
		return domain.ErrCircuit{
			Op:  "bootstrap",
			Err: fmt.Errorf("tor exited before bootstrap with code %d", cmd.ProcessState.ExitCode()),
		}
	case <-timer.C:
		p.logger.Error("tor bootstrap timed out, killing", zap.Duration("timeout", p.cfg.BootstrapTimeout))
		p.kill(cmd, done)
		return domain.ErrCircuit{Op: "bootstrap", Err: domain.ErrTimeout}
	case <-ctx.Done():
		p.kill(cmd, done)
		return domain.ErrCircuit{Op: "bootstrap", Err: ctx.Err()}
	}
}

// Stop terminates the daemon if one is held. It is safe to call at any time.
func (p *Process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}

	select {
	case <-p.done:
		p.logger.Info("tor already exited")
		p.cmd, p.done = nil, nil
		return nil
	default:
	}

	p.logger.Info("stopping tor", zap.Int("pid", p.cmd.Process.Pid))

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		p.logger.Warn("sigterm failed, killing", zap.Error(err))
		_ = execrun.KillTree(p.cmd.Process.Pid)
	}

	select {
	case <-p.done:
		p.logger.Info("tor stopped")
	case <-time.After(stopTimeout):
		p.logger.Warn("tor did not stop in time, killing")
		p.kill(p.cmd, p.done)
	}

	p.cmd, p.done = nil, nil
	return nil
}

// Running reports whether a daemon is held and has not exited.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runningLocked()
}

// Must be called with p.mu held.
func (p *Process) runningLocked() bool {
	if p.cmd == nil || p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Process) kill(cmd *exec.Cmd, done <-chan struct{}) {
	_ = execrun.KillTree(cmd.Process.Pid)
	select {
	case <-done:
	case <-time.After(stopTimeout):
		p.logger.Error("tor did not exit after kill", zap.Int("pid", cmd.Process.Pid))
	}
}

var _ impls.CircuitProcess = (*Process)(nil)
