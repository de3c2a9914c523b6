/*
Eloop ties a reactor and a job pool into one runtime context. A single
goroutine owns an Eloop: it submits jobs, polls for events and consumes job
completions. Only Post may be called from other goroutines.
*/
package eloop

import (
	"math"

	"github.com/eapache/queue"
	"github.com/moqsien/processes/logger"

	"github.com/moqsien/gkasync/iface"
	"github.com/moqsien/gkasync/jobs"
	"github.com/moqsien/gkasync/poll"
	"github.com/moqsien/gkasync/tlsengine"
	"github.com/moqsien/gkasync/utils/errs"
)

// Completion is a finished job whose notification has been consumed. The
// job's results stay valid until Release.
type Completion struct {
	ID  int32
	Job jobs.Job

	loop *Eloop
}

// Release parks the worker and releases the job. Results that were not
// fetched, such as an opened fd, are closed.
func (that Completion) Release() {
	if that.loop != nil {
		that.loop.release(that.ID)
	}
}

type Eloop struct {
	opts     *iface.Options
	poller   *poll.Poller
	notifier *notifier
	pool     *jobs.Pool
	workers  map[int32]*jobs.Worker // pending or popped but not released
	done     *queue.Queue           // completed job ids not popped yet
	events   []iface.Event
	nextID   int32
	closed   bool
}

func New(opts *iface.Options) (*Eloop, error) {
	opts = opts.Normalize()
	p, err := poll.New(opts)
	if err != nil {
		return nil, err
	}
	n, err := newNotifier(p)
	if err != nil {
		p.Close()
		return nil, err
	}
	that := &Eloop{
		opts:     opts,
		poller:   p,
		notifier: n,
		pool:     jobs.NewPool(opts),
		workers:  make(map[int32]*jobs.Worker),
		done:     queue.New(),
		events:   make([]iface.Event, 0, opts.EventBatch),
	}
	that.pool.Init(n)
	return that, nil
}

func (that *Eloop) Reactor() *poll.Poller {
	return that.poller
}

func (that *Eloop) Pool() *jobs.Pool {
	return that.pool
}

// Pending reports how many jobs were submitted and not released yet.
func (that *Eloop) Pending() int {
	return len(that.workers)
}

func (that *Eloop) allocID() int32 {
	for {
		if that.nextID == math.MaxInt32 {
			that.nextID = 0
		}
		that.nextID++
		if _, busy := that.workers[that.nextID]; !busy {
			return that.nextID
		}
	}
}

// Submit runs job on a pool worker and returns the id its completion will
// carry.
func (that *Eloop) Submit(job jobs.Job) (int32, error) {
	if that.closed {
		return -1, errs.ErrPollerClosed
	}
	id := that.allocID()
	w, err := that.pool.Acquire(id, job)
	if err != nil {
		return -1, err
	}
	that.workers[id] = w
	return id, nil
}

func (that *Eloop) Cancel(id int32) jobs.CancelResult {
	w, ok := that.workers[id]
	if !ok {
		return jobs.CancelNotFound
	}
	return w.Cancel()
}

// Poll waits for at most timeoutMs milliseconds, queues the job completions
// that arrived and runs posted tasks. The returned events exclude job
// notifications and are valid until the next Poll.
func (that *Eloop) Poll(timeoutMs int) ([]iface.Event, error) {
	if that.closed {
		return nil, errs.ErrPollerClosed
	}
	n, err := that.poller.Wait(timeoutMs)
	if err != nil {
		return nil, err
	}
	that.events = that.events[:0]
	for i := 0; i < n; i++ {
		ev := that.poller.Event(i)
		if that.notifier.owns(ev) {
			that.notifier.collect(ev, that.complete)
			continue
		}
		that.events = append(that.events, ev)
	}
	that.poller.RunTasks()
	return that.events, nil
}

func (that *Eloop) complete(id int32) {
	if _, ok := that.workers[id]; !ok {
		logger.Warningf("completion of unknown job %d dropped", id)
		return
	}
	that.done.Add(id)
}

// NextCompletion pops the oldest completion queued by Poll.
func (that *Eloop) NextCompletion() (Completion, bool) {
	if that.done.Length() == 0 {
		return Completion{}, false
	}
	id := that.done.Remove().(int32)
	w := that.workers[id]
	return Completion{ID: id, Job: w.Job(), loop: that}, true
}

func (that *Eloop) release(id int32) {
	if that.closed {
		return
	}
	w, ok := that.workers[id]
	if !ok {
		logger.Warningf("release of job %d: %v", id, errs.ErrUnknownJob)
		return
	}
	delete(that.workers, id)
	that.pool.Recycle(w)
}

// Post runs fn on the polling goroutine during the next Poll. It is safe to
// call from any goroutine.
func (that *Eloop) Post(fn func()) error {
	return that.poller.AddTask(func(poll.PollTaskArg) error {
		fn()
		return nil
	}, nil)
}

// NewTLSSession opens a session on the configured TLS backend.
func (that *Eloop) NewTLSSession() (tlsengine.Session, error) {
	return tlsengine.NewSession(that.opts.TLSBackend)
}

// Close cancels outstanding jobs, waits for their workers and closes the
// reactor. Completions not released yet are released by the pool.
func (that *Eloop) Close() error {
	if that.closed {
		return nil
	}
	that.closed = true
	that.pool.Destroy()
	that.workers = make(map[int32]*jobs.Worker)
	err := that.notifier.close()
	if e := that.poller.Close(); err == nil {
		err = e
	}
	return err
}
