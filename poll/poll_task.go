package poll

import (
	"sync"

	"github.com/moqsien/processes/logger"
)

type PollTaskArg interface{}

type PollTaskFunc func(arg PollTaskArg) error

type PollTask struct {
	Go  PollTaskFunc
	Arg PollTaskArg
}

var PollTaskPool = sync.Pool{
	New: func() interface{} {
		return &PollTask{}
	},
}

func PutTask(t *PollTask) {
	t.Go, t.Arg = nil, nil
	PollTaskPool.Put(t)
}

func GetTask() *PollTask {
	return PollTaskPool.Get().(*PollTask)
}

// AddTask queues f to run on the polling goroutine and wakes it.
func (that *Poller) AddTask(f PollTaskFunc, arg PollTaskArg) error {
	task := GetTask()
	task.Go, task.Arg = f, arg
	that.tasks.Enqueue(task)
	return that.Wake()
}

// RunTasks runs every queued task on the calling goroutine and reports
// how many ran.
func (that *Poller) RunTasks() (n int) {
	for task, ok := that.tasks.Dequeue(); ok; task, ok = that.tasks.Dequeue() {
		if err := task.Go(task.Arg); err != nil {
			logger.Warningf("error occurs in poll task: %v", err)
		}
		PutTask(task)
		n++
	}
	return
}
