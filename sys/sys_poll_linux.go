//go:build linux

package sys

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/iface"
	"github.com/moqsien/gkasync/utils"
	"github.com/moqsien/gkasync/utils/errs"
)

var ePool = &sync.Pool{New: func() any {
	return &unix.EpollEvent{}
}}

func eGet() *unix.EpollEvent {
	return ePool.Get().(*unix.EpollEvent)
}

func ePut(event *unix.EpollEvent) {
	*event = unix.EpollEvent{}
	ePool.Put(event)
}

const (
	ReadEvents   = unix.EPOLLIN
	WriteEvents  = unix.EPOLLOUT
	EdgeEvents   = unix.EPOLLET | unix.EPOLLRDHUP
	ClosedEvents = unix.EPOLLERR | unix.EPOLLHUP | unix.EPOLLRDHUP

	// pidTag marks a registration whose fd is a pidfd.
	pidTag int32 = 1
)

func epollFdHandler(pollFd, fd, ctlAction int, evs uint32, tag int32) (err error) {
	var event *unix.EpollEvent
	if ctlAction != unix.EPOLL_CTL_DEL {
		event = eGet()
		defer ePut(event)
		event.Fd, event.Events, event.Pad = int32(fd), evs, tag
	}
	err = unix.EpollCtl(pollFd, ctlAction, fd, event)
	var eSysName string
	switch ctlAction {
	case unix.EPOLL_CTL_ADD:
		eSysName = "epoll_ctl_add"
	case unix.EPOLL_CTL_MOD:
		eSysName = "epoll_ctl_mod"
	case unix.EPOLL_CTL_DEL:
		eSysName = "epoll_ctl_del"
	default:
	}
	return utils.SysError(eSysName, err)
}

func interestEvents(mask iface.Interest) (evs uint32) {
	if mask.Readable() {
		evs |= ReadEvents
	}
	if mask.Writable() {
		evs |= WriteEvents
	}
	return
}

// CreatePoll creates the epoll instance and the eventfd used by Wake.
func CreatePoll() (pollFd, wakeR, wakeW int, err error) {
	pollFd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		err = utils.SysError("epoll_create1", err)
		return
	}
	wakeR, wakeW, err = NewWakeFd()
	if err != nil {
		unix.Close(pollFd)
		return
	}
	if err = epollFdHandler(pollFd, wakeR, unix.EPOLL_CTL_ADD, ReadEvents, 0); err != nil {
		unix.Close(pollFd)
		CloseWakeFd(wakeR, wakeW)
	}
	return
}

// Register arms prev|add on fd, edge-triggered. A fresh fd (prev == none)
// is added, anything else is modified.
func Register(pollFd, fd int, prev, add iface.Interest, oneshot bool) error {
	evs := interestEvents(prev|add) | EdgeEvents
	if oneshot {
		evs |= unix.EPOLLONESHOT
	}
	action := unix.EPOLL_CTL_MOD
	if prev == iface.InterestNone {
		action = unix.EPOLL_CTL_ADD
	}
	return epollFdHandler(pollFd, fd, action, evs, 0)
}

func UnRegister(pollFd, fd int, _ iface.Interest) error {
	return epollFdHandler(pollFd, fd, unix.EPOLL_CTL_DEL, 0, 0)
}

// RegisterProcess watches pid through a pidfd and returns the pidfd.
func RegisterProcess(pollFd, pid int) (int, error) {
	pidFd, err := unix.PidfdOpen(pid, 0)
	if err == unix.ESRCH {
		return -1, errs.ErrProcessExited
	} else if err != nil {
		return -1, utils.SysError("pidfd_open", err)
	}
	unix.CloseOnExec(pidFd)
	if err = epollFdHandler(pollFd, pidFd, unix.EPOLL_CTL_ADD, ReadEvents, pidTag); err != nil {
		unix.Close(pidFd)
		return -1, err
	}
	return pidFd, nil
}

func UnRegisterProcess(pollFd, handle int) error {
	err := epollFdHandler(pollFd, handle, unix.EPOLL_CTL_DEL, 0, 0)
	if cerr := unix.Close(handle); err == nil {
		err = utils.SysError("close", cerr)
	}
	return err
}

// EventList is the batch buffer handed to epoll_wait.
type EventList struct {
	size   int
	max    int
	events []unix.EpollEvent
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
		events: make([]unix.EpollEvent, size),
		ready:  make([]iface.Event, 0, size),
	}
}

func (that *EventList) expand() {
	if newSize := that.size << 1; newSize <= that.max {
		that.size = newSize
		that.events = make([]unix.EpollEvent, newSize)
	}
}

func (that *EventList) shrink() {
	if newSize := that.size >> 1; newSize >= iface.MinPollSize {
		that.size = newSize
		that.events = make([]unix.EpollEvent, newSize)
	}
}

func decode(ev *unix.EpollEvent) (e iface.Event) {
	e.Fd = int(ev.Fd)
	switch {
	case ev.Pad == pidTag:
		e.Kind = iface.EventProcessExited
	case ev.Events&ClosedEvents != 0:
		e.Kind = iface.EventErrorOrHangup
	default:
		if ev.Events&ReadEvents != 0 {
			e.Kind |= iface.EventReadable
		}
		if ev.Events&WriteEvents != 0 {
			e.Kind |= iface.EventWritable
		}
	}
	return
}

// Wait fills the list with at most its current size of events. Events on
// wakeFd are drained and dropped.
func (that *EventList) Wait(pollFd, wakeFd, timeoutMs int) (int, error) {
	that.ready = that.ready[:0]
	n, err := unix.EpollWait(pollFd, that.events, timeoutMs)
	if err == unix.EINTR {
		return 0, nil
	} else if err != nil {
		return 0, utils.SysError("epoll_wait", err)
	}
	for i := 0; i < n; i++ {
		ev := &that.events[i]
		if int(ev.Fd) == wakeFd && ev.Pad != pidTag {
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
