//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/iface"
	"github.com/moqsien/gkasync/utils/errs"
)

func TestPipeNotifierFetch(t *testing.T) {
	n, err := NewPipeNotifier()
	require.NoError(t, err)
	defer n.Close()

	_, err = n.Fetch()
	assert.True(t, errs.IsWouldBlock(err))

	for _, id := range []int32{0, 1, 1 << 20, -5} {
		require.NoError(t, n.Notify(id))
	}
	for _, id := range []int32{0, 1, 1 << 20, -5} {
		got, err := n.Fetch()
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
	_, err = n.Fetch()
	assert.True(t, errs.IsWouldBlock(err))
}

func TestPoolWithPipeNotifier(t *testing.T) {
	n, err := NewPipeNotifier()
	require.NoError(t, err)
	defer n.Close()

	p := NewPool(iface.DefaultOptions())
	p.Init(n)
	defer p.Destroy()

	job := NewSleepJob(1)
	p.SpawnWorker(42, job)

	var id int32
	for {
		id, err = n.Fetch()
		if !errs.IsWouldBlock(err) {
			break
		}
		fds := []unix.PollFd{{Fd: int32(n.Fd()), Events: unix.POLLIN}}
		_, perr := unix.Poll(fds, 5000)
		require.True(t, perr == nil || perr == unix.EINTR)
	}
	require.NoError(t, err)
	assert.Equal(t, int32(42), id)
	assert.True(t, job.Done())
}
