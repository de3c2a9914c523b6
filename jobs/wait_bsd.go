//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package jobs

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils"
)

func (that *WaitProcessJob) work(_ context.Context, intr *interrupter) (int64, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return -1, utils.SysError("kqueue", err)
	}
	defer unix.Close(kq)

	changes := make([]unix.Kevent_t, 2)
	unix.SetKevent(&changes[0], that.pid, unix.EVFILT_PROC, unix.EV_ADD|unix.EV_ONESHOT)
	changes[0].Fflags = unix.NOTE_EXIT
	unix.SetKevent(&changes[1], intr.r, unix.EVFILT_READ, unix.EV_ADD)
	if _, err = unix.Kevent(kq, changes[:1], nil, nil); err == unix.ESRCH {
		// already a zombie
		status, err := sys.ExitStatus(that.pid)
		return int64(status), err
	} else if err != nil {
		return -1, utils.SysError("kevent", err)
	}
	if _, err = unix.Kevent(kq, changes[1:], nil, nil); err != nil {
		return -1, utils.SysError("kevent", err)
	}

	events := make([]unix.Kevent_t, 2)
	for {
		n, err := unix.Kevent(kq, nil, events, nil)
		if err == unix.EINTR {
			continue
		} else if err != nil {
			return -1, utils.SysError("kevent", err)
		}
		for i := 0; i < n; i++ {
			if int(events[i].Ident) == intr.r && events[i].Filter == unix.EVFILT_READ {
				return -1, sys.ECANCELLED
			}
		}
		if n > 0 {
			break
		}
	}
	status, err := sys.ExitStatus(that.pid)
	return int64(status), err
}
