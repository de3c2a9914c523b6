//go:build windows

package jobs

import (
	"context"

	"golang.org/x/sys/windows"

	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils"
)

const errNotFound = windows.ERROR_FILE_NOT_FOUND

var stdHandles = [3]uint32{windows.STD_INPUT_HANDLE, windows.STD_OUTPUT_HANDLE, windows.STD_ERROR_HANDLE}

func stdioFiles(stdio [3]sys.Handle) ([]uintptr, error) {
	files := make([]uintptr, len(stdio))
	for i, h := range stdio {
		if h == sys.InvalidHandle {
			std, err := windows.GetStdHandle(stdHandles[i])
			if err != nil {
				return nil, utils.SysError("GetStdHandle", err)
			}
			h = std
		}
		files[i] = uintptr(h)
	}
	return files, nil
}

func closeProcessHandle(h uintptr) {
	windows.CloseHandle(windows.Handle(h))
}

func (that *WaitProcessJob) work(_ context.Context, intr *interrupter) (int64, error) {
	h, err := windows.OpenProcess(windows.SYNCHRONIZE|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(that.pid))
	if err != nil {
		return -1, utils.SysError("OpenProcess", err)
	}
	defer windows.CloseHandle(h)
	if err = intr.waitHandle(h); err != nil {
		return -1, err
	}
	var code uint32
	if err = windows.GetExitCodeProcess(h, &code); err != nil {
		return -1, utils.SysError("GetExitCodeProcess", err)
	}
	return int64(code), nil
}
