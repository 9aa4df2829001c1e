//go:build !linux

package execrun

import "syscall"

func SysProcAttr() *syscall.SysProcAttr {
	return nil
}
