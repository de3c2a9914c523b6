//go:build !windows

package sys

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/utils"
)

// Handle is an OS file handle: a file descriptor on unix.
type Handle = int

const InvalidHandle Handle = -1

// ECANCELLED is the error a job reports when it was interrupted.
const ECANCELLED = syscall.EINTR

func CloseFd(fd int) error {
	return unix.Close(fd)
}

func Write(fd int, p []byte) (n int, err error) {
	return unix.Write(fd, p)
}

func Read(fd int, p []byte) (n int, err error) {
	return unix.Read(fd, p)
}

// Pipe returns a close-on-exec pipe whose read end is non-blocking.
func Pipe() (r, w int, err error) {
	var p [2]int
	if err = unix.Pipe(p[:]); err != nil {
		return -1, -1, utils.SysError("pipe", err)
	}
	unix.CloseOnExec(p[0])
	unix.CloseOnExec(p[1])
	if err = unix.SetNonblock(p[0], true); err != nil {
		unix.Close(p[0])
		unix.Close(p[1])
		return -1, -1, utils.SysError("fcntl", err)
	}
	return p[0], p[1], nil
}

func SetNonblock(fd int, nonblocking bool) error {
	return utils.SysError("fcntl", unix.SetNonblock(fd, nonblocking))
}

func IsNonblock(fd int) (bool, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return false, utils.SysError("fcntl", err)
	}
	return flags&unix.O_NONBLOCK != 0, nil
}

func SetCloseOnExec(fd int) {
	unix.CloseOnExec(fd)
}

// IsValid reports whether fd refers to an open descriptor.
func IsValid(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

func KindFromMode(mode uint32) FileKind {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return KindRegular
	case unix.S_IFDIR:
		return KindDirectory
	case unix.S_IFLNK:
		return KindSymLink
	case unix.S_IFSOCK:
		return KindSocket
	case unix.S_IFIFO:
		return KindPipe
	case unix.S_IFBLK:
		return KindBlockDevice
	case unix.S_IFCHR:
		return KindCharDevice
	}
	return KindUnknown
}

func statusCode(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}

// ExitStatus reaps pid, blocking until it exits. A process killed by a
// signal reports 128 plus the signal number.
func ExitStatus(pid int) (int, error) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, utils.SysError("wait4", err)
		}
		return statusCode(ws), nil
	}
}

// TryExitStatus reaps pid if it has exited; done is false while it runs.
func TryExitStatus(pid int) (status int, done bool, err error) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
	if err != nil {
		return -1, false, utils.SysError("wait4", err)
	}
	if wpid == 0 {
		return -1, false, nil
	}
	return statusCode(ws), true, nil
}

func Terminate(pid int) error {
	return utils.SysError("kill", unix.Kill(pid, unix.SIGTERM))
}

func Kill(pid int) error {
	return utils.SysError("kill", unix.Kill(pid, unix.SIGKILL))
}
