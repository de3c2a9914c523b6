//go:build !windows

package errs

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func classifyErrno(errno syscall.Errno) Kind {
	switch errno {
	case unix.ENOENT:
		return NotFound
	case unix.EEXIST:
		return AlreadyExists
	case unix.EACCES, unix.EPERM:
		return PermissionDenied
	case unix.EAGAIN, unix.EINPROGRESS:
		return WouldBlock
	case unix.EINTR:
		return Cancelled
	case unix.ECONNREFUSED:
		return ConnectionRefused
	}
	return Unknown
}
