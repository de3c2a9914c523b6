//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package sys

import (
	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/utils"
)

// NewWakeFd returns a self-pipe with both ends non-blocking.
func NewWakeFd() (r, w int, err error) {
	if r, w, err = Pipe(); err != nil {
		return
	}
	if err = unix.SetNonblock(w, true); err != nil {
		unix.Close(r)
		unix.Close(w)
		return -1, -1, utils.SysError("fcntl", err)
	}
	return
}

func Trigger(w int) error {
	if _, err := unix.Write(w, []byte{1}); err != nil && err != unix.EAGAIN {
		return utils.SysError("pipe_write", err)
	}
	return nil
}

func Drain(r int) {
	var buf [64]byte
	for {
		n, err := unix.Read(r, buf[:])
		if err == unix.EINTR {
			continue
		}
		if n <= 0 || err != nil {
			return
		}
	}
}

func CloseWakeFd(r, w int) {
	unix.Close(r)
	unix.Close(w)
}
