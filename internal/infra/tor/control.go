package tor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/magicaleks/onionfetch/internal/domain"
	"github.com/magicaleks/onionfetch/internal/impls"
)

const (
	statusOK     = "250"
	replyTimeout = 30 * time.Second
)

// Controller speaks the daemon's line-oriented control protocol. Each
// rotation opens its own session, authenticates, signals and closes.
type Controller struct {
	addr        string
	dialTimeout time.Duration
	grace       time.Duration
	daemon      impls.CircuitProcess
	logger      *zap.Logger
}

func NewController(controlPort int, dialTimeout, grace time.Duration, daemon impls.CircuitProcess, logger *zap.Logger) *Controller {
	return &Controller{
		addr:        fmt.Sprintf("127.0.0.1:%d", controlPort),
		dialTimeout: dialTimeout,
		grace:       grace,
		daemon:      daemon,
		logger:      logger,
	}
}

// Rotate requests a new circuit, starting the daemon first if needed, and
// waits out the grace period so the next connection uses the new circuit.
func (c *Controller) Rotate(ctx context.Context) error {
	if !c.daemon.Running() {
		c.logger.Info("tor not running, starting it")
		if err := c.daemon.Start(ctx); err != nil {
			return err
		}
	}

	if err := c.newnym(ctx); err != nil {
		c.logger.Warn("circuit rotation failed", zap.Error(err))
		return err
	}

	c.logger.Info("circuit rotated, waiting for it to settle", zap.Duration("grace", c.grace))

	timer := time.NewTimer(c.grace)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return domain.ErrCircuit{Op: "rotate", Err: ctx.Err()}
	}
}

func (c *Controller) newnym(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return domain.ErrCircuit{Op: "dial", Err: err}
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(replyTimeout))
	reader := bufio.NewReader(conn)

	if err := exchange(conn, reader, `AUTHENTICATE ""`); err != nil {
		return err
	}
	return exchange(conn, reader, "SIGNAL NEWNYM")
}

// exchange sends one command and requires a single 250 reply line.
func exchange(w io.Writer, r *bufio.Reader, command string) error {
	if _, err := io.WriteString(w, command+"\r\n"); err != nil {
		return domain.ErrCircuit{Op: "write " + command, Err: err}
	}

	line, err := r.ReadString('\n')
	if err != nil {
		return domain.ErrCircuit{Op: "read reply to " + command, Err: err}
	}

	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, statusOK) {
		return domain.ErrControlReply{Command: command, Reply: line}
	}
	return nil
}

var _ impls.CircuitRotator = (*Controller)(nil)
