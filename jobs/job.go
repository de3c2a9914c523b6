/*
Package jobs runs blocking OS operations on dedicated workers and reports
each completion through a Notifier, so a single-threaded scheduler can wait
for them with the same reactor it uses for sockets.
*/
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/moqsien/processes/logger"

	"github.com/moqsien/gkasync/sys"
)

// Job is one blocking operation plus its result slots. Err is nil iff Ret
// holds a valid result; a failed job reports Ret -1.
type Job interface {
	Ret() int64
	Err() error
	base() *jobBase
	work(ctx context.Context, intr *interrupter) (int64, error)
	release()
}

type jobBase struct {
	ret     int64
	err     error
	done    atomic.Bool
	once    sync.Once
	cleanup func()
}

func (that *jobBase) base() *jobBase { return that }

func (that *jobBase) Ret() int64 {
	if !that.done.Load() {
		return 0
	}
	return that.ret
}

func (that *jobBase) Err() error {
	if !that.done.Load() {
		return nil
	}
	return that.err
}

// Done reports whether the worker has filled the result slots.
func (that *jobBase) Done() bool {
	return that.done.Load()
}

func (that *jobBase) release() {
	that.once.Do(func() {
		if that.cleanup != nil {
			that.cleanup()
		}
	})
}

func runJob(ctx context.Context, job Job, intr *interrupter) {
	b := job.base()
	b.done.Store(false)
	ret, err := func() (ret int64, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("job panicked: %v", r)
				ret, err = -1, fmt.Errorf("job panicked: %v", r)
			}
		}()
		return job.work(ctx, intr)
	}()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			err = sys.ECANCELLED
		}
		ret = -1
	}
	b.ret, b.err = ret, err
	b.done.Store(true)
}

// CancelResult is the outcome of Worker.Cancel.
type CancelResult int

const (
	// CancelFailed means the interrupt could not be delivered.
	CancelFailed CancelResult = -1
	// CancelNotFound means the job had no interruptible wait in flight and
	// will complete normally.
	CancelNotFound CancelResult = 0
	// CancelSafe means the worker was parked, nothing is running.
	CancelSafe CancelResult = 1
	// CancelInterrupted means the interrupt was delivered; an interruptible
	// wait finishes with a cancelled error.
	CancelInterrupted CancelResult = 2
)

func (that CancelResult) String() string {
	switch that {
	case CancelFailed:
		return "failed"
	case CancelNotFound:
		return "not-found"
	case CancelSafe:
		return "safe"
	case CancelInterrupted:
		return "interrupted"
	}
	return "unknown"
}
