package execrun

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/magicaleks/onionfetch/internal/domain"
)

type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) add(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func TestRunCapturesCombinedOutput(t *testing.T) {
	r := NewRunner(zap.NewNop())
	sink := &lineSink{}

	code, err := r.Run(context.Background(), domain.Command{
		Name:   "sh",
		Args:   []string{"-c", "echo out; echo err 1>&2; echo done"},
		OnLine: sink.add,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.ElementsMatch(t, []string{"out", "err", "done"}, sink.lines)
}

func TestRunReturnsNonZeroExit(t *testing.T) {
	r := NewRunner(zap.NewNop())

	code, err := r.Run(context.Background(), domain.Command{
		Name: "sh",
		Args: []string{"-c", "exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestRunKillsOnTimeout(t *testing.T) {
	r := NewRunner(zap.NewNop())

	start := time.Now()
	_, err := r.Run(context.Background(), domain.Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 30"},
		Timeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunMissingBinary(t *testing.T) {
	r := NewRunner(zap.NewNop())

	code, err := r.Run(context.Background(), domain.Command{Name: "/nonexistent/binary-onionfetch"})
	require.Error(t, err)
	assert.Equal(t, -1, code)

	var perr domain.ErrProcess
	assert.ErrorAs(t, err, &perr)
}

func TestScanLinesNilCallback(t *testing.T) {
	assert.NotPanics(t, func() {
		ScanLines(strings.NewReader("a\nb\n"), nil)
	})
}
