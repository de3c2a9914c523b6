//go:build linux

package sys

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/utils"
)

var wakeValue = func() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, 1)
	return b
}()

// NewWakeFd returns an eventfd; both ends are the same descriptor.
func NewWakeFd() (r, w int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, -1, utils.SysError("eventfd", err)
	}
	return fd, fd, nil
}

func Trigger(w int) error {
	if _, err := unix.Write(w, wakeValue); err != nil && err != unix.EAGAIN {
		return utils.SysError("eventfd_write", err)
	}
	return nil
}

func Drain(r int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(r, buf[:]); err != unix.EINTR {
			return
		}
	}
}

func CloseWakeFd(r, w int) {
	unix.Close(r)
}
