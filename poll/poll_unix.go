//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package poll

import (
	"sync/atomic"

	"github.com/moqsien/gkasync/iface"
	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils"
	"github.com/moqsien/gkasync/utils/errs"
	"github.com/moqsien/gkasync/utils/queue"
)

type Poller struct {
	pollFd int                     // poll file descriptor
	wakeR  int                     // read end of the wake fd
	wakeW  int                     // write end of the wake fd
	events *sys.EventList          // last batch
	tasks  *queue.Queue[*PollTask] // tasks posted from other goroutines
	closed int32
}

var _ iface.IReadinessReactor = (*Poller)(nil)

func New(opts *iface.Options) (p *Poller, err error) {
	opts = opts.Normalize()
	p = new(Poller)
	p.pollFd, p.wakeR, p.wakeW, err = sys.CreatePoll()
	if err != nil {
		return nil, err
	}
	p.events = sys.NewEventList(opts.EventBatch)
	p.tasks = queue.NewQueue[*PollTask]()
	return
}

func (that *Poller) GetFd() int {
	return that.pollFd
}

func (that *Poller) Model() iface.Model {
	return iface.ModelReadiness
}

func (that *Poller) isClosed() bool {
	return atomic.LoadInt32(&that.closed) == 1
}

func (that *Poller) Register(fd int, prev, add iface.Interest, oneshot bool) error {
	if that.isClosed() {
		return errs.ErrPollerClosed
	}
	return sys.Register(that.pollFd, fd, prev, add, oneshot)
}

func (that *Poller) RegisterProcess(pid int) (int, error) {
	if that.isClosed() {
		return -1, errs.ErrPollerClosed
	}
	return sys.RegisterProcess(that.pollFd, pid)
}

func (that *Poller) Remove(fd int, current iface.Interest) error {
	if that.isClosed() {
		return errs.ErrPollerClosed
	}
	return sys.UnRegister(that.pollFd, fd, current)
}

func (that *Poller) RemoveProcess(handle int) error {
	if that.isClosed() {
		return errs.ErrPollerClosed
	}
	return sys.UnRegisterProcess(that.pollFd, handle)
}

func (that *Poller) Wait(timeoutMs int) (int, error) {
	if that.isClosed() {
		return 0, errs.ErrPollerClosed
	}
	return that.events.Wait(that.pollFd, that.wakeR, timeoutMs)
}

func (that *Poller) Event(i int) iface.Event {
	return that.events.Event(i)
}

func (that *Poller) Wake() error {
	if that.isClosed() {
		return errs.ErrPollerClosed
	}
	return sys.Trigger(that.wakeW)
}

func (that *Poller) Close() error {
	if !atomic.CompareAndSwapInt32(&that.closed, 0, 1) {
		return nil
	}
	sys.CloseWakeFd(that.wakeR, that.wakeW)
	return utils.SysError("pollfd_close", sys.CloseFd(that.pollFd))
}
