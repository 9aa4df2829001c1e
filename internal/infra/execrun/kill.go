package execrun

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// KillTree kills pid and every descendant it can enumerate.
func KillTree(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return os.ErrProcessDone
	}

	if children, err := p.Children(); err == nil {
		for _, child := range children {
			_ = KillTree(int(child.Pid))
		}
	}
	return p.Kill()
}
