//go:build windows

package sys

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/moqsien/gkasync/iface"
	"github.com/moqsien/gkasync/utils"
)

const (
	// WakeKey is the completion key of packets posted by Wake.
	WakeKey uintptr = 0
	// CompletionKey is the completion key of job pool notifications.
	CompletionKey = ^uintptr(0)
)

var errWaitTimeout = syscall.Errno(258)

func CreatePoll() (port Handle, err error) {
	port, err = windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return 0, utils.SysError("CreateIoCompletionPort", err)
	}
	return
}

// Associate binds handle to port with the handle itself as completion key.
// Operations that finish synchronously do not queue a packet.
func Associate(port Handle, handle Handle) error {
	if err := windows.SetFileCompletionNotificationModes(handle, windows.FILE_SKIP_COMPLETION_PORT_ON_SUCCESS); err != nil {
		return utils.SysError("SetFileCompletionNotificationModes", err)
	}
	if _, err := windows.CreateIoCompletionPort(handle, port, uintptr(handle), 0); err != nil {
		return utils.SysError("CreateIoCompletionPort", err)
	}
	return nil
}

func Post(port Handle, key uintptr, bytes uint32) error {
	return utils.SysError("PostQueuedCompletionStatus", windows.PostQueuedCompletionStatus(port, bytes, key, nil))
}

func Trigger(port Handle) error {
	return Post(port, WakeKey, 0)
}

type EventList struct {
	max   int
	ready []iface.Event
}

func NewEventList(max int) *EventList {
	return &EventList{max: max, ready: make([]iface.Event, 0, max)}
}

// Wait dequeues up to max packets. Only the first dequeue waits for
// timeoutMs, the rest of the batch is drained without blocking.
func (that *EventList) Wait(port Handle, timeoutMs int) (int, error) {
	that.ready = that.ready[:0]
	timeout := uint32(windows.INFINITE)
	if timeoutMs >= 0 {
		timeout = uint32(timeoutMs)
	}
	for len(that.ready) < that.max {
		var (
			bytes      uint32
			key        uintptr
			overlapped *windows.Overlapped
		)
		err := windows.GetQueuedCompletionStatus(port, &bytes, &key, &overlapped, timeout)
		timeout = 0
		if overlapped == nil {
			if err == errWaitTimeout {
				break
			} else if err != nil {
				if len(that.ready) > 0 {
					break
				}
				return 0, utils.SysError("GetQueuedCompletionStatus", err)
			}
			if key == WakeKey {
				continue
			}
		}
		e := iface.Event{
			Kind:       iface.EventCompleted,
			Handle:     key,
			Overlapped: uintptr(unsafe.Pointer(overlapped)),
			Bytes:      bytes,
		}
		if err != nil {
			e.Kind, e.Err = iface.EventErrorOrHangup, err
		}
		that.ready = append(that.ready, e)
	}
	return len(that.ready), nil
}

func (that *EventList) Event(i int) iface.Event {
	return that.ready[i]
}
