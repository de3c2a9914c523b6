//go:build !windows

package errs

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestClassifyErrno(t *testing.T) {
	assert.True(t, IsNotFound(unix.ENOENT))
	assert.True(t, IsExists(os.NewSyscallError("mkdir", unix.EEXIST)))
	assert.True(t, IsPermissionDenied(unix.EACCES))
	assert.True(t, IsWouldBlock(unix.EAGAIN))
	assert.True(t, IsWouldBlock(unix.EINPROGRESS))
	assert.True(t, IsCancelled(unix.EINTR))
	assert.True(t, IsConnectionRefused(unix.ECONNREFUSED))
	assert.Equal(t, Unknown, Classify(unix.EBADF))
	assert.Equal(t, int64(unix.ENOENT), Code(unix.ENOENT))
}
