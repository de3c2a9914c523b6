//go:build windows

package jobs

import (
	"time"

	"github.com/moqsien/processes/logger"
	"golang.org/x/sys/windows"

	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils"
)

// CancelSynchronousIo targets a thread, so workers stay on one OS thread.
const interruptNeedsThread = true

const threadTerminate = 0x0001

var (
	modkernel32             = windows.NewLazySystemDLL("kernel32.dll")
	procCancelSynchronousIo = modkernel32.NewProc("CancelSynchronousIo")
)

// interrupter pairs a manual-reset event, for waits the worker performs
// itself, with CancelSynchronousIo for blocking file calls.
type interrupter struct {
	event  windows.Handle
	thread windows.Handle
}

func newInterrupter() (*interrupter, error) {
	ev, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return nil, utils.SysError("CreateEvent", err)
	}
	return &interrupter{event: ev}, nil
}

func (that *interrupter) bind() {
	h, err := windows.OpenThread(threadTerminate, false, windows.GetCurrentThreadId())
	if err != nil {
		logger.Warningf("open worker thread: %v", err)
		return
	}
	that.thread = h
}

func (that *interrupter) fire() CancelResult {
	if err := windows.SetEvent(that.event); err != nil {
		logger.Warningf("interrupt worker: %v", err)
		return CancelFailed
	}
	if that.thread == 0 {
		return CancelNotFound
	}
	r1, _, e1 := procCancelSynchronousIo.Call(uintptr(that.thread))
	if r1 != 0 {
		return CancelInterrupted
	}
	if e1 == windows.ERROR_NOT_FOUND {
		return CancelNotFound
	}
	return CancelFailed
}

func (that *interrupter) reset() {
	windows.ResetEvent(that.event)
}

func (that *interrupter) close() {
	windows.CloseHandle(that.event)
	if that.thread != 0 {
		windows.CloseHandle(that.thread)
	}
}

// waitHandle waits for h and returns sys.ECANCELLED if the interrupter
// fires first.
func (that *interrupter) waitHandle(h windows.Handle) error {
	ev, err := windows.WaitForMultipleObjects([]windows.Handle{h, that.event}, false, windows.INFINITE)
	if err != nil {
		return utils.SysError("WaitForMultipleObjects", err)
	}
	if ev == windows.WAIT_OBJECT_0+1 {
		return sys.ECANCELLED
	}
	return nil
}

func (that *interrupter) sleep(d time.Duration) error {
	ev, err := windows.WaitForSingleObject(that.event, uint32(d/time.Millisecond))
	if err != nil {
		return utils.SysError("WaitForSingleObject", err)
	}
	if ev == windows.WAIT_OBJECT_0 {
		return sys.ECANCELLED
	}
	return nil
}
