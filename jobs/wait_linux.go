package jobs

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils"
)

func (that *WaitProcessJob) work(_ context.Context, intr *interrupter) (int64, error) {
	pidfd, err := unix.PidfdOpen(that.pid, 0)
	switch err {
	case nil:
		defer unix.Close(pidfd)
		if err = intr.waitFd(pidfd, unix.POLLIN); err != nil {
			return -1, err
		}
	case unix.ENOSYS:
		// kernels without pidfd wait uninterruptibly
	default:
		return -1, utils.SysError("pidfd_open", err)
	}
	status, err := sys.ExitStatus(that.pid)
	return int64(status), err
}
