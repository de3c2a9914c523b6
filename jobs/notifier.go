package jobs

// Notifier receives the id of every finished job, once per job.
type Notifier interface {
	Notify(jobID int32) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(jobID int32) error

func (that NotifierFunc) Notify(jobID int32) error {
	return that(jobID)
}
