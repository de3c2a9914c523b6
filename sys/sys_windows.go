//go:build windows

package sys

import (
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/moqsien/gkasync/utils"
)

// Handle is an OS file handle: a HANDLE on windows.
type Handle = windows.Handle

const InvalidHandle Handle = windows.InvalidHandle

// ECANCELLED is the error a job reports when it was interrupted.
const ECANCELLED = syscall.Errno(windows.ERROR_OPERATION_ABORTED)

func CloseFd(h Handle) error {
	return utils.SysError("CloseHandle", windows.CloseHandle(h))
}

// KindFromAttributes maps file attributes and the handle type to a FileKind.
func KindFromAttributes(attrs uint32, fileType uint32) FileKind {
	switch fileType {
	case windows.FILE_TYPE_PIPE:
		return KindPipe
	case windows.FILE_TYPE_CHAR:
		return KindCharDevice
	}
	switch {
	case attrs&windows.FILE_ATTRIBUTE_REPARSE_POINT != 0:
		return KindSymLink
	case attrs&windows.FILE_ATTRIBUTE_DIRECTORY != 0:
		return KindDirectory
	}
	return KindRegular
}

func Terminate(pid int) error {
	return Kill(pid)
}

func Kill(pid int) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return utils.SysError("OpenProcess", err)
	}
	defer windows.CloseHandle(h)
	return utils.SysError("TerminateProcess", windows.TerminateProcess(h, 1))
}

// ExitStatus waits for pid to exit and returns its exit code.
func ExitStatus(pid int) (int, error) {
	h, err := windows.OpenProcess(windows.SYNCHRONIZE|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return -1, utils.SysError("OpenProcess", err)
	}
	defer windows.CloseHandle(h)
	if _, err = windows.WaitForSingleObject(h, windows.INFINITE); err != nil {
		return -1, utils.SysError("WaitForSingleObject", err)
	}
	var code uint32
	if err = windows.GetExitCodeProcess(h, &code); err != nil {
		return -1, utils.SysError("GetExitCodeProcess", err)
	}
	return int(code), nil
}
