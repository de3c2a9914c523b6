//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package jobs

import (
	"encoding/binary"
	"io"

	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils"
	"github.com/moqsien/gkasync/utils/errs"
)

const idSize = 4

// PipeNotifier writes job ids into a pipe; the read end is non-blocking and
// meant to be registered with the reactor.
type PipeNotifier struct {
	r int
	w int
}

func NewPipeNotifier() (*PipeNotifier, error) {
	r, w, err := sys.Pipe()
	if err != nil {
		return nil, err
	}
	return &PipeNotifier{r: r, w: w}, nil
}

func (that *PipeNotifier) Fd() int {
	return that.r
}

func (that *PipeNotifier) GetFd() int {
	return that.r
}

// Notify writes one id. Writes this small are atomic on a pipe.
func (that *PipeNotifier) Notify(jobID int32) error {
	var buf [idSize]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(jobID))
	for {
		_, err := unix.Write(that.w, buf[:])
		if err == unix.EINTR {
			continue
		}
		return utils.SysError("write", err)
	}
}

// Fetch reads one id. A drained pipe yields an error for which
// errs.IsWouldBlock is true.
func (that *PipeNotifier) Fetch() (int32, error) {
	var buf [idSize]byte
	for {
		n, err := unix.Read(that.r, buf[:])
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			return -1, utils.SysError("read", err)
		case n == 0:
			return -1, io.EOF
		case n < idSize:
			return -1, errs.ErrShortBuffer
		}
		return int32(binary.LittleEndian.Uint32(buf[:])), nil
	}
}

func (that *PipeNotifier) Close() error {
	err := sys.CloseFd(that.w)
	if e := sys.CloseFd(that.r); err == nil {
		err = e
	}
	return utils.SysError("close", err)
}
