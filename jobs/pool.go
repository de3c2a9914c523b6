package jobs

import (
	"sync"

	"github.com/moqsien/processes/logger"
	"github.com/panjf2000/ants/v2"

	"github.com/moqsien/gkasync/iface"
	"github.com/moqsien/gkasync/utils/errs"
	"github.com/moqsien/gkasync/utils/queue"
)

// Pool hosts job workers on an ants goroutine pool. Init and Destroy must
// pair up; breaking that is a programming error and aborts.
type Pool struct {
	mu          sync.Mutex
	initialized bool
	notifier    Notifier
	ants        *ants.Pool
	idle        *queue.Queue[*Worker]
	workers     map[*Worker]struct{}
	opts        *iface.Options
	lockThread  bool
}

func NewPool(opts *iface.Options) *Pool {
	opts = opts.Normalize()
	return &Pool{
		idle:       queue.NewQueue[*Worker](),
		workers:    make(map[*Worker]struct{}),
		opts:       opts,
		lockThread: opts.LockOSThread,
	}
}

func (that *Pool) Init(n Notifier) {
	that.mu.Lock()
	if that.initialized {
		that.mu.Unlock()
		errs.Fatal("job pool initialized twice")
	}
	p, err := ants.NewPool(that.opts.MaxWorkers,
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(that.opts.WorkerExpiry),
		ants.WithPanicHandler(func(r interface{}) {
			logger.Errorf("job worker panicked: %v", r)
		}))
	if err != nil {
		that.mu.Unlock()
		errs.Fatal("create worker pool: %v", err)
	}
	that.ants, that.notifier, that.initialized = p, n, true
	that.mu.Unlock()
}

// Destroy cancels running jobs, waits for every worker and releases the
// goroutine pool.
func (that *Pool) Destroy() {
	that.mu.Lock()
	if !that.initialized {
		that.mu.Unlock()
		errs.Fatal("job pool destroyed without init")
	}
	that.initialized = false
	workers := make([]*Worker, 0, len(that.workers))
	for w := range that.workers {
		workers = append(workers, w)
	}
	that.mu.Unlock()

	for _, w := range workers {
		w.Cancel()
		w.Free()
	}
	for _, ok := that.idle.Dequeue(); ok; _, ok = that.idle.Dequeue() {
	}
	that.ants.Release()
}

func (that *Pool) Initialized() bool {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.initialized
}

// TrySpawnWorker starts a worker already holding its first job.
func (that *Pool) TrySpawnWorker(jobID int32, job Job) (*Worker, error) {
	that.mu.Lock()
	defer that.mu.Unlock()
	if !that.initialized {
		return nil, errs.ErrInvalidState
	}
	w, err := newWorker(that, jobID, job)
	if err != nil {
		return nil, err
	}
	if err = that.ants.Submit(w.loop); err != nil {
		w.intr.close()
		if err == ants.ErrPoolOverload {
			return nil, errs.ErrPoolOverloaded
		}
		return nil, err
	}
	that.workers[w] = struct{}{}
	return w, nil
}

// SpawnWorker is TrySpawnWorker that treats failure as fatal.
func (that *Pool) SpawnWorker(jobID int32, job Job) *Worker {
	w, err := that.TrySpawnWorker(jobID, job)
	if err != nil {
		errs.Fatal("spawn worker: %v", err)
	}
	return w
}

// Acquire runs job on an idle worker, spawning one when none is idle.
func (that *Pool) Acquire(jobID int32, job Job) (*Worker, error) {
	if w, ok := that.idle.Dequeue(); ok {
		w.Wake(jobID, job)
		return w, nil
	}
	return that.TrySpawnWorker(jobID, job)
}

// Recycle parks a worker whose completion has been consumed.
func (that *Pool) Recycle(w *Worker) {
	w.EnterIdle()
	that.idle.Enqueue(w)
}

func (that *Pool) Running() int {
	that.mu.Lock()
	defer that.mu.Unlock()
	return len(that.workers)
}

func (that *Pool) Idle() int {
	return that.idle.Len()
}

func (that *Pool) notify(jobID int32) {
	that.mu.Lock()
	n := that.notifier
	that.mu.Unlock()
	if n == nil {
		return
	}
	if err := n.Notify(jobID); err != nil {
		logger.Warningf("job %d completion was not delivered: %v", jobID, err)
	}
}

func (that *Pool) forget(w *Worker) {
	that.mu.Lock()
	delete(that.workers, w)
	that.mu.Unlock()
}
