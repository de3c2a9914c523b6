package jobs

import (
	"context"
	"runtime"
	"sync"

	"github.com/moqsien/gkasync/utils/errs"
)

// Worker owns one goroutine (and, when configured, one OS thread) that runs
// a single job at a time and parks between jobs.
type Worker struct {
	pool    *Pool
	mu      sync.Mutex
	cond    *sync.Cond
	jobID   int32
	job     Job
	waiting bool
	ctx     context.Context
	cancel  context.CancelFunc
	intr    *interrupter
	done    chan struct{}
}

func newWorker(pool *Pool, jobID int32, job Job) (*Worker, error) {
	intr, err := newInterrupter()
	if err != nil {
		return nil, err
	}
	w := &Worker{
		pool:  pool,
		jobID: jobID,
		job:   job,
		intr:  intr,
		done:  make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w, nil
}

func (that *Worker) loop() {
	if that.pool.lockThread || interruptNeedsThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	that.intr.bind()
	defer close(that.done)

	that.mu.Lock()
	for {
		jobID, job, ctx := that.jobID, that.job, that.ctx
		that.mu.Unlock()
		if job == nil {
			return
		}

		runJob(ctx, job, that.intr)

		that.mu.Lock()
		that.waiting = true
		that.cond.Broadcast()
		that.mu.Unlock()
		that.pool.notify(jobID)

		that.mu.Lock()
		for that.waiting {
			that.cond.Wait()
		}
	}
}

// Wake hands a parked worker its next job. The previous job is released
// and any interrupt left over from it is discarded. A nil job terminates
// the worker. Waking a worker that is still running a job is fatal.
func (that *Worker) Wake(jobID int32, job Job) {
	that.mu.Lock()
	if !that.waiting {
		running := that.jobID
		that.mu.Unlock()
		errs.Fatal("wake of worker busy with job %d", running)
	}
	prev := that.job
	that.jobID, that.job = jobID, job
	that.cancel()
	that.ctx, that.cancel = context.WithCancel(context.Background())
	that.intr.reset()
	that.waiting = false
	that.cond.Broadcast()
	that.mu.Unlock()
	if prev != nil && prev != job {
		prev.release()
	}
}

// EnterIdle releases the finished job while the worker stays parked.
func (that *Worker) EnterIdle() {
	that.mu.Lock()
	prev := that.job
	that.job = nil
	that.mu.Unlock()
	if prev != nil {
		prev.release()
	}
}

// Cancel asks the running job to stop.
func (that *Worker) Cancel() CancelResult {
	that.mu.Lock()
	defer that.mu.Unlock()
	if that.waiting {
		return CancelSafe
	}
	that.cancel()
	return that.intr.fire()
}

func (that *Worker) Waiting() bool {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.waiting
}

func (that *Worker) JobID() int32 {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.jobID
}

func (that *Worker) Job() Job {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.job
}

// Free waits for the current job to finish, then terminates the worker and
// waits for its goroutine to exit.
func (that *Worker) Free() {
	that.mu.Lock()
	for !that.waiting {
		that.cond.Wait()
	}
	that.mu.Unlock()
	that.Wake(0, nil)
	<-that.done
	that.cancel()
	that.intr.close()
	that.pool.forget(that)
}
