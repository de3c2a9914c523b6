//go:build linux || darwin || freebsd || netbsd || dragonfly

package socket

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils"
	"github.com/moqsien/gkasync/utils/errs"
)

var syscallName string = "setsockopt"

func SetKeepAlive(fd, secs int) error {
	if secs <= 0 {
		return fmt.Errorf("keep-alive time %d: %w", secs, errs.ErrInvalidArgument)
	}
	err := unix.SetsockoptInt(fd, sys.SOL_SOCKET, sys.SO_KEEPALIVE, 1)
	if err != nil {
		return utils.SysError(syscallName, err)
	}
	err = unix.SetsockoptInt(fd, sys.IPPROTO_TCP, sys.TCP_KEEPINTVL, secs)
	if err != nil {
		return utils.SysError(syscallName, err)
	}
	err = unix.SetsockoptInt(fd, sys.IPPROTO_TCP, sys.TCP_KEEPIDLE, secs)
	return utils.SysError(syscallName, err)
}

// SetNoDelay disables Nagle's algorithm.
func SetNoDelay(fd int) error {
	return utils.SysError(syscallName, unix.SetsockoptInt(fd, sys.IPPROTO_TCP, unix.TCP_NODELAY, 1))
}

func SetReuseAddr(fd int) error {
	return utils.SysError(syscallName, unix.SetsockoptInt(fd, sys.SOL_SOCKET, unix.SO_REUSEADDR, 1))
}

func SetIPv6Only(fd int, only bool) error {
	v := 0
	if only {
		v = 1
	}
	return utils.SysError(syscallName, unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, v))
}

// SockError reports the pending error of fd, typically the outcome of a
// non-blocking connect once the socket turns writable.
func SockError(fd int) error {
	v, err := unix.GetsockoptInt(fd, sys.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return utils.SysError("getsockopt", err)
	}
	if v != 0 {
		return utils.SysError("connect", syscall.Errno(v))
	}
	return nil
}

// Accept takes one pending connection off a non-blocking listener. The new
// fd is non-blocking and close-on-exec. An empty backlog yields an error for
// which errs.IsWouldBlock is true.
func Accept(fd int) (int, unix.Sockaddr, error) {
	for {
		nfd, sa, err := unix.Accept(fd)
		if err == unix.EINTR || err == unix.ECONNABORTED {
			continue
		}
		if err != nil {
			return -1, nil, utils.SysError("accept", err)
		}
		unix.CloseOnExec(nfd)
		if err = sys.SetNonblock(nfd, true); err != nil {
			sys.CloseFd(nfd)
			return -1, nil, err
		}
		return nfd, sa, nil
	}
}
