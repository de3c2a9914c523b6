//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package jobs

import (
	"syscall"

	"github.com/moqsien/gkasync/sys"
)

const errNotFound = syscall.ENOENT

func stdioFiles(stdio [3]sys.Handle) ([]uintptr, error) {
	files := make([]uintptr, len(stdio))
	for i, fd := range stdio {
		if fd == sys.InvalidHandle {
			fd = i
		}
		files[i] = uintptr(fd)
	}
	return files, nil
}

func closeProcessHandle(uintptr) {}
