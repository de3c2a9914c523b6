//go:build windows

package poll

import (
	"sync/atomic"

	"golang.org/x/sys/windows"

	"github.com/moqsien/gkasync/iface"
	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils"
	"github.com/moqsien/gkasync/utils/errs"
	"github.com/moqsien/gkasync/utils/queue"
)

type Poller struct {
	port   sys.Handle              // completion port
	events *sys.EventList          // last batch
	tasks  *queue.Queue[*PollTask] // tasks posted from other goroutines
	closed int32
}

var _ iface.ICompletionReactor = (*Poller)(nil)

func New(opts *iface.Options) (p *Poller, err error) {
	opts = opts.Normalize()
	p = new(Poller)
	if p.port, err = sys.CreatePoll(); err != nil {
		return nil, err
	}
	p.events = sys.NewEventList(opts.EventBatch)
	p.tasks = queue.NewQueue[*PollTask]()
	return
}

func (that *Poller) Port() sys.Handle {
	return that.port
}

func (that *Poller) Model() iface.Model {
	return iface.ModelCompletion
}

func (that *Poller) isClosed() bool {
	return atomic.LoadInt32(&that.closed) == 1
}

func (that *Poller) Associate(handle uintptr) error {
	if that.isClosed() {
		return errs.ErrPollerClosed
	}
	return sys.Associate(that.port, windows.Handle(handle))
}

func (that *Poller) Post(key uintptr, bytes uint32) error {
	if that.isClosed() {
		return errs.ErrPollerClosed
	}
	return sys.Post(that.port, key, bytes)
}

func (that *Poller) Wait(timeoutMs int) (int, error) {
	if that.isClosed() {
		return 0, errs.ErrPollerClosed
	}
	return that.events.Wait(that.port, timeoutMs)
}

func (that *Poller) Event(i int) iface.Event {
	return that.events.Event(i)
}

func (that *Poller) Wake() error {
	if that.isClosed() {
		return errs.ErrPollerClosed
	}
	return sys.Trigger(that.port)
}

func (that *Poller) Close() error {
	if !atomic.CompareAndSwapInt32(&that.closed, 0, 1) {
		return nil
	}
	return utils.SysError("CloseHandle", windows.CloseHandle(that.port))
}
