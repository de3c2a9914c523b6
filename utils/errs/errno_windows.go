//go:build windows

package errs

import (
	"syscall"

	"golang.org/x/sys/windows"
)

const (
	errorConnectionRefused = syscall.Errno(1225)
	wsaEWouldBlock         = syscall.Errno(10035)
	wsaEConnRefused        = syscall.Errno(10061)
)

func classifyErrno(errno syscall.Errno) Kind {
	switch errno {
	case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND:
		return NotFound
	case windows.ERROR_FILE_EXISTS, windows.ERROR_ALREADY_EXISTS:
		return AlreadyExists
	case windows.ERROR_ACCESS_DENIED:
		return PermissionDenied
	case windows.ERROR_IO_INCOMPLETE, windows.ERROR_IO_PENDING, wsaEWouldBlock:
		return WouldBlock
	case windows.ERROR_OPERATION_ABORTED:
		return Cancelled
	case errorConnectionRefused, wsaEConnRefused:
		return ConnectionRefused
	case windows.ERROR_HANDLE_EOF, windows.ERROR_BROKEN_PIPE:
		return EndOfFile
	}
	return Unknown
}
