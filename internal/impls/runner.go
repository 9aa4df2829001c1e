package impls

import (
	"context"

	"github.com/magicaleks/onionfetch/internal/domain"
)

// CommandRunner runs an external program to completion and reports its exit code.
// A timeout is reported as domain.ErrTimeout after the process has been killed.
type CommandRunner interface {
	Run(ctx context.Context, cmd domain.Command) (int, error)
}
