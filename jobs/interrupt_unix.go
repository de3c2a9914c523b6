//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package jobs

import (
	"time"

	"github.com/moqsien/processes/logger"
	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils"
)

const interruptNeedsThread = false

// interrupter is a per-worker wake fd that interruptible waits poll next to
// their own descriptor.
type interrupter struct {
	r int
	w int
}

func newInterrupter() (*interrupter, error) {
	r, w, err := sys.NewWakeFd()
	if err != nil {
		return nil, err
	}
	return &interrupter{r: r, w: w}, nil
}

func (that *interrupter) bind() {}

func (that *interrupter) fire() CancelResult {
	if err := sys.Trigger(that.w); err != nil {
		logger.Warningf("interrupt worker: %v", err)
		return CancelFailed
	}
	return CancelInterrupted
}

func (that *interrupter) reset() {
	sys.Drain(that.r)
}

func (that *interrupter) close() {
	sys.CloseWakeFd(that.r, that.w)
}

// waitFd blocks until fd reports one of events (or an error condition) and
// returns sys.ECANCELLED if the interrupter fires first.
func (that *interrupter) waitFd(fd int, events int16) error {
	fds := []unix.PollFd{
		{Fd: int32(fd), Events: events},
		{Fd: int32(that.r), Events: unix.POLLIN},
	}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		} else if err != nil {
			return utils.SysError("poll", err)
		}
		if fds[1].Revents != 0 {
			return sys.ECANCELLED
		}
		if fds[0].Revents != 0 {
			return nil
		}
	}
}

// sleep waits for d and returns sys.ECANCELLED if interrupted.
func (that *interrupter) sleep(d time.Duration) error {
	deadline := time.Now().Add(d)
	fds := []unix.PollFd{{Fd: int32(that.r), Events: unix.POLLIN}}
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return nil
		}
		ms := int((left + time.Millisecond - 1) / time.Millisecond)
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		} else if err != nil {
			return utils.SysError("poll", err)
		}
		if n > 0 {
			return sys.ECANCELLED
		}
	}
}
