// Package execrun runs external programs with a hard runtime bound and
// streams their combined output line by line.
package execrun

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/magicaleks/onionfetch/internal/domain"
	"github.com/magicaleks/onionfetch/internal/impls"
)

const maxLineSize = 1 << 20

// Runner implements impls.CommandRunner on top of os/exec.
type Runner struct {
	logger    *zap.Logger
	waitDelay time.Duration
}

func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{
		logger:    logger,
		waitDelay: 5 * time.Second,
	}
}

// Run starts the command, feeds every output line to cmd.OnLine and waits for
// exit. A non-zero exit is not an error: the code is returned as is.
func (r *Runner) Run(ctx context.Context, c domain.Command) (int, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.SysProcAttr = SysProcAttr()
	cmd.Cancel = func() error {
		return KillTree(cmd.Process.Pid)
	}
	cmd.WaitDelay = r.waitDelay

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return -1, domain.ErrProcess{Name: c.Name, Err: err}
	}

	r.logger.Debug("process started", zap.String("name", c.Name), zap.Int("pid", cmd.Process.Pid))

	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		ScanLines(pr, c.OnLine)
	}()

	err := cmd.Wait()
	_ = pw.Close()
	<-scanned

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			r.logger.Warn("process timed out, killed",
				zap.String("name", c.Name),
				zap.Duration("timeout", c.Timeout))
			return -1, domain.ErrProcess{Name: c.Name, Err: domain.ErrTimeout}
		}
		return -1, domain.ErrProcess{Name: c.Name, Err: ctxErr}
	}

	code := exitCode(cmd, err)
	if code < 0 {
		return -1, domain.ErrProcess{Name: c.Name, Err: err}
	}

	r.logger.Debug("process exited", zap.String("name", c.Name), zap.Int("code", code))
	return code, nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	// Output pipe held open by a grandchild after the process itself exited.
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

// ScanLines calls onLine for each line read from r and drains the rest of
// the stream if a line exceeds the scanner limit.
func ScanLines(r io.Reader, onLine func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if onLine != nil {
			onLine(scanner.Text())
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

var _ impls.CommandRunner = (*Runner)(nil)
