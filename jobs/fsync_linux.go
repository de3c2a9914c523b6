package jobs

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/utils"
)

func (that *FsyncJob) work(_ context.Context, _ *interrupter) (int64, error) {
	if that.onlyData {
		return 0, utils.SysError("fdatasync", unix.Fdatasync(that.fd))
	}
	return 0, utils.SysError("fsync", unix.Fsync(that.fd))
}
