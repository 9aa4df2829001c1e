package execrun

import "syscall"

// SysProcAttr makes the kernel SIGKILL the child if onionfetch dies first.
func SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGKILL,
	}
}
