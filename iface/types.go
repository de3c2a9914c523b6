package iface

import (
	"time"
)

// Event is one decoded entry of the last Wait batch.
type Event struct {
	Fd   int
	Kind EventKind

	// completion backend only
	Handle     uintptr
	Overlapped uintptr
	Bytes      uint32
	Err        error
}

const (
	DefaultMaxWorkers   = 256
	DefaultWorkerExpiry = 10 * time.Second
)

type Options struct {
	MaxWorkers   int
	WorkerExpiry time.Duration
	LockOSThread bool
	EventBatch   int
	TLSBackend   string
}

func DefaultOptions() *Options {
	return &Options{
		MaxWorkers:   DefaultMaxWorkers,
		WorkerExpiry: DefaultWorkerExpiry,
		LockOSThread: true,
		EventBatch:   MaxPollSize,
	}
}

// Normalize fills zero fields with defaults and clamps EventBatch.
func (that *Options) Normalize() *Options {
	if that == nil {
		return DefaultOptions()
	}
	if that.MaxWorkers <= 0 {
		that.MaxWorkers = DefaultMaxWorkers
	}
	if that.WorkerExpiry <= 0 {
		that.WorkerExpiry = DefaultWorkerExpiry
	}
	switch {
	case that.EventBatch <= 0:
		that.EventBatch = MaxPollSize
	case that.EventBatch < MinPollSize:
		that.EventBatch = MinPollSize
	case that.EventBatch > MaxPollSize:
		that.EventBatch = MaxPollSize
	}
	return that
}
