package iface

type IFd interface {
	GetFd() int
}

type IReactor interface {
	Model() Model
	// Wait blocks for at most timeoutMs milliseconds (< 0 forever, 0 polls)
	// and returns how many events are readable through Event.
	Wait(timeoutMs int) (int, error)
	Event(i int) Event
	// Wake makes a concurrent or upcoming Wait return.
	Wake() error
	Close() error
}

// IReadinessReactor is implemented by epoll and kqueue backends.
type IReadinessReactor interface {
	IReactor
	// Register arms prev|add on fd. prev must be what is registered now,
	// InterestNone for a fresh fd.
	Register(fd int, prev, add Interest, oneshot bool) error
	RegisterProcess(pid int) (handle int, err error)
	Remove(fd int, current Interest) error
	RemoveProcess(handle int) error
}

// ICompletionReactor is implemented by the IOCP backend.
type ICompletionReactor interface {
	IReactor
	Associate(handle uintptr) error
	Post(key uintptr, bytes uint32) error
}
