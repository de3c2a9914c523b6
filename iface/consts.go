package iface

// Interest is the readiness a caller wants to hear about.
type Interest uint8

const (
	InterestNone      Interest = 0
	InterestRead      Interest = 1
	InterestWrite     Interest = 2
	InterestReadWrite Interest = InterestRead | InterestWrite
)

func (that Interest) Readable() bool { return that&InterestRead != 0 }

func (that Interest) Writable() bool { return that&InterestWrite != 0 }

type EventKind uint8

const (
	EventNone          EventKind = 0
	EventReadable      EventKind = 1
	EventWritable      EventKind = 2
	EventReadWritable  EventKind = EventReadable | EventWritable
	EventErrorOrHangup EventKind = 4
	EventProcessExited EventKind = 5
	EventCompleted     EventKind = 6
)

var eventKindNames = map[EventKind]string{
	EventNone:          "none",
	EventReadable:      "readable",
	EventWritable:      "writable",
	EventReadWritable:  "read-writable",
	EventErrorOrHangup: "error-or-hangup",
	EventProcessExited: "process-exited",
	EventCompleted:     "completed",
}

func (that EventKind) String() string {
	if s, ok := eventKindNames[that]; ok {
		return s
	}
	return "unknown"
}

// Model tells which shape a reactor backend has.
type Model int

const (
	ModelReadiness Model = iota
	ModelCompletion
)

const (
	MaxPollSize  = 1024
	MinPollSize  = 32
	InitPollSize = 128
)
