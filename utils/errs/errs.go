package errs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/moqsien/processes/logger"
)

var (
	ErrUnsupportedOp   = errors.New("unsupported operation")
	ErrPollerClosed    = errors.New("poller has been closed")
	ErrProcessExited   = errors.New("process has already terminated")
	ErrUnavailable     = errors.New("backend is not available on this system")
	ErrNotInitialized  = errors.New("session is not initialized")
	ErrInvalidState    = errors.New("operation is not valid in the current state")
	ErrUnknownJob      = errors.New("unknown job id")
	ErrPoolOverloaded  = errors.New("job pool has no room for another worker")
	ErrCancelled       = errors.New("operation cancelled")
	ErrShortBuffer     = errors.New("buffer is shorter than the requested range")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Kind is the portable category of an OS or protocol error.
type Kind int

const (
	Unknown Kind = iota
	NotFound
	AlreadyExists
	PermissionDenied
	WouldBlock
	Cancelled
	ConnectionRefused
	EndOfFile
	Protocol
	KindFatal
)

var kindNames = [...]string{
	Unknown:           "unknown",
	NotFound:          "not found",
	AlreadyExists:     "already exists",
	PermissionDenied:  "permission denied",
	WouldBlock:        "would block",
	Cancelled:         "cancelled",
	ConnectionRefused: "connection refused",
	EndOfFile:         "end of file",
	Protocol:          "protocol",
	KindFatal:         "fatal",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ProtocolError carries a TLS backend diagnostic.
type ProtocolError struct {
	Op   string
	Code uint32
	Msg  string
}

func (that *ProtocolError) Error() string {
	if that.Code != 0 {
		return fmt.Sprintf("%s: %s (0x%08x)", that.Op, that.Msg, that.Code)
	}
	return fmt.Sprintf("%s: %s", that.Op, that.Msg)
}

// FatalError is the panic value raised for lifecycle misuse.
type FatalError struct {
	Msg string
}

func (that *FatalError) Error() string {
	return "fatal: " + that.Msg
}

// Fatal logs the message and panics with a *FatalError.
func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Errorf("fatal: %s", msg)
	panic(&FatalError{Msg: msg})
}

// Classify maps err onto a Kind, unwrapping os, net and TLS error wrappers.
func Classify(err error) Kind {
	if err == nil {
		return Unknown
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return KindFatal
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return Cancelled
	}
	if errors.Is(err, io.EOF) {
		return EndOfFile
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return Protocol
	}
	var de *net.DNSError
	if errors.As(err, &de) && de.IsNotFound {
		return NotFound
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return classifyErrno(errno)
	}
	return Unknown
}

// Code returns the raw platform error code carried by err, or 0.
func Code(err error) int64 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int64(errno)
	}
	return 0
}

func IsNotFound(err error) bool { return Classify(err) == NotFound }

func IsExists(err error) bool { return Classify(err) == AlreadyExists }

func IsPermissionDenied(err error) bool { return Classify(err) == PermissionDenied }

func IsWouldBlock(err error) bool { return Classify(err) == WouldBlock }

func IsCancelled(err error) bool { return Classify(err) == Cancelled }

func IsConnectionRefused(err error) bool { return Classify(err) == ConnectionRefused }

func IsEOF(err error) bool { return Classify(err) == EndOfFile }

func IsProtocol(err error) bool { return Classify(err) == Protocol }
