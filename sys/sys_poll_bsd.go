//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package sys

import (
	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/iface"
	"github.com/moqsien/gkasync/utils"
	"github.com/moqsien/gkasync/utils/errs"
)

const (
	kSysAdd = "kevent_add"
	kSysDel = "kevent_del"
)

func kevent(pollFd int, changes []unix.Kevent_t, name string) error {
	for {
		_, err := unix.Kevent(pollFd, changes, nil, nil)
		if err == unix.EINTR {
			continue
		}
		return utils.SysError(name, err)
	}
}

// filters returns one change per filter selected by mask; kqueue keeps
// read and write interest as separate filters.
func filters(fd int, mask iface.Interest, flags int) (changes []unix.Kevent_t) {
	if mask.Readable() {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, unix.EVFILT_READ, flags)
		changes = append(changes, ev)
	}
	if mask.Writable() {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, unix.EVFILT_WRITE, flags)
		changes = append(changes, ev)
	}
	return
}

func CreatePoll() (pollFd, wakeR, wakeW int, err error) {
	pollFd, err = unix.Kqueue()
	if err != nil {
		err = utils.SysError("kqueue", err)
		return
	}
	unix.CloseOnExec(pollFd)
	wakeR, wakeW, err = NewWakeFd()
	if err != nil {
		unix.Close(pollFd)
		return
	}
	if err = kevent(pollFd, filters(wakeR, iface.InterestRead, unix.EV_ADD), kSysAdd); err != nil {
		unix.Close(pollFd)
		CloseWakeFd(wakeR, wakeW)
	}
	return
}

// Register adds the filters of add on fd. Filters of prev are already in
// place and stay untouched.
func Register(pollFd, fd int, prev, add iface.Interest, oneshot bool) error {
	flags := unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR
	if oneshot {
		flags |= evOneshot
	}
	changes := filters(fd, add, flags)
	if len(changes) == 0 {
		return nil
	}
	return kevent(pollFd, changes, kSysAdd)
}

// UnRegister deletes the filters of current. A filter a oneshot delivery
// already dropped is not an error.
func UnRegister(pollFd, fd int, current iface.Interest) error {
	var err error
	for _, ev := range filters(fd, current, unix.EV_DELETE) {
		e := kevent(pollFd, []unix.Kevent_t{ev}, kSysDel)
		if e != nil && errs.Code(e) != int64(unix.ENOENT) && err == nil {
			err = e
		}
	}
	return err
}

func RegisterProcess(pollFd, pid int) (int, error) {
	var ev unix.Kevent_t
	unix.SetKevent(&ev, pid, unix.EVFILT_PROC, unix.EV_ADD)
	ev.Fflags = unix.NOTE_EXIT
	err := kevent(pollFd, []unix.Kevent_t{ev}, kSysAdd)
	switch {
	case err == nil:
		return pid, nil
	case errs.Code(err) == int64(unix.ESRCH):
		return -1, errs.ErrProcessExited
	default:
		return -1, err
	}
}

// UnRegisterProcess is a no-op, the kernel drops the filter on exit.
func UnRegisterProcess(pollFd, handle int) error {
	return nil
}

type EventList struct {
	size   int
	max    int
	events []unix.Kevent_t
	ready  []iface.Event
}

func NewEventList(max int) *EventList {
	size := iface.InitPollSize
	if size > max {
		size = max
	}
	return &EventList{
		size:   size,
		max:    max,
		events: make([]unix.Kevent_t, size),
		ready:  make([]iface.Event, 0, size),
	}
}

func (that *EventList) expand() {
	if newSize := that.size << 1; newSize <= that.max {
		that.size = newSize
		that.events = make([]unix.Kevent_t, newSize)
	}
}

func (that *EventList) shrink() {
	if newSize := that.size >> 1; newSize >= iface.MinPollSize {
		that.size = newSize
		that.events = make([]unix.Kevent_t, newSize)
	}
}

func decode(ev *unix.Kevent_t) (e iface.Event) {
	e.Fd = int(ev.Ident)
	switch {
	case ev.Flags&unix.EV_ERROR != 0:
		e.Kind = iface.EventErrorOrHangup
	case ev.Filter == unix.EVFILT_READ:
		e.Kind = iface.EventReadable
	case ev.Filter == unix.EVFILT_WRITE:
		e.Kind = iface.EventWritable
	case ev.Filter == unix.EVFILT_PROC:
		e.Kind = iface.EventProcessExited
	}
	return
}

func (that *EventList) Wait(pollFd, wakeFd, timeoutMs int) (int, error) {
	that.ready = that.ready[:0]
	var tsp *unix.Timespec
	if timeoutMs >= 0 {
		ts := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		tsp = &ts
	}
	n, err := unix.Kevent(pollFd, nil, that.events, tsp)
	if err == unix.EINTR {
		return 0, nil
	} else if err != nil {
		return 0, utils.SysError("kevent_wait", err)
	}
	for i := 0; i < n; i++ {
		ev := &that.events[i]
		if int(ev.Ident) == wakeFd && ev.Filter == unix.EVFILT_READ {
			Drain(wakeFd)
			continue
		}
		that.ready = append(that.ready, decode(ev))
	}
	if n == that.size {
		that.expand()
	} else if n < that.size>>2 {
		that.shrink()
	}
	return len(that.ready), nil
}

func (that *EventList) Event(i int) iface.Event {
	return that.ready[i]
}
