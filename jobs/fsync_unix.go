//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package jobs

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/utils"
)

func (that *FsyncJob) work(_ context.Context, _ *interrupter) (int64, error) {
	return 0, utils.SysError("fsync", unix.Fsync(that.fd))
}
