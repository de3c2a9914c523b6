//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package poll

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moqsien/gkasync/iface"
	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils/errs"
)

func newPoller(t *testing.T) *Poller {
	t.Helper()
	p, err := New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	r, w, err := sys.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sys.CloseFd(r)
		_ = sys.CloseFd(w)
	})
	return
}

// waitFor collects events until one for fd shows up or the deadline passes.
func waitFor(t *testing.T, p *Poller, fd int, within time.Duration) (iface.Event, bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		n, err := p.Wait(int(time.Until(deadline)/time.Millisecond) + 1)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			if ev := p.Event(i); ev.Fd == fd {
				return ev, true
			}
		}
	}
	return iface.Event{}, false
}

func TestOneshotIsNotRedelivered(t *testing.T) {
	p := newPoller(t)
	r, w := newPipe(t)

	require.NoError(t, p.Register(r, iface.InterestNone, iface.InterestRead, true))
	_, err := sys.Write(w, []byte("a"))
	require.NoError(t, err)

	ev, ok := waitFor(t, p, r, time.Second)
	require.True(t, ok)
	assert.Equal(t, iface.EventReadable, ev.Kind)

	_, err = sys.Write(w, []byte("b"))
	require.NoError(t, err)
	_, ok = waitFor(t, p, r, 100*time.Millisecond)
	assert.False(t, ok, "oneshot registration fired twice")

	require.NoError(t, p.Register(r, iface.InterestRead, iface.InterestRead, true))
	ev, ok = waitFor(t, p, r, time.Second)
	require.True(t, ok)
	assert.Equal(t, iface.EventReadable, ev.Kind)
}

func TestRemoveAfterOneshotDelivery(t *testing.T) {
	p := newPoller(t)
	r, w := newPipe(t)

	require.NoError(t, p.Register(r, iface.InterestNone, iface.InterestRead, true))
	_, err := sys.Write(w, []byte("a"))
	require.NoError(t, err)
	_, ok := waitFor(t, p, r, time.Second)
	require.True(t, ok)

	assert.NoError(t, p.Remove(r, iface.InterestRead))
	require.NoError(t, p.Register(r, iface.InterestNone, iface.InterestRead, false))
	_, ok = waitFor(t, p, r, time.Second)
	assert.True(t, ok)
}

func TestWaitZeroDoesNotBlock(t *testing.T) {
	p := newPoller(t)
	r, _ := newPipe(t)
	require.NoError(t, p.Register(r, iface.InterestNone, iface.InterestRead, false))

	start := time.Now()
	n, err := p.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitForeverReturnsOnWrite(t *testing.T) {
	p := newPoller(t)
	r, w := newPipe(t)
	require.NoError(t, p.Register(r, iface.InterestNone, iface.InterestRead, false))

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = sys.Write(w, []byte("x"))
	}()
	n, err := p.Wait(-1)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, r, p.Event(0).Fd)
	assert.Equal(t, iface.EventReadable, p.Event(0).Kind)
}

func TestHangupOnClosedWriter(t *testing.T) {
	p := newPoller(t)
	r, w, err := sys.Pipe()
	require.NoError(t, err)
	defer sys.CloseFd(r)

	require.NoError(t, p.Register(r, iface.InterestNone, iface.InterestRead, false))
	require.NoError(t, sys.CloseFd(w))

	ev, ok := waitFor(t, p, r, time.Second)
	require.True(t, ok)
	assert.Contains(t, []iface.EventKind{iface.EventErrorOrHangup, iface.EventReadable}, ev.Kind)
}

func TestRegisterTwiceNeedsPrev(t *testing.T) {
	p := newPoller(t)
	r, w := newPipe(t)

	require.NoError(t, p.Register(w, iface.InterestNone, iface.InterestWrite, false))
	require.NoError(t, p.Register(w, iface.InterestWrite, iface.InterestWrite, false))

	ev, ok := waitFor(t, p, w, time.Second)
	require.True(t, ok)
	assert.Equal(t, iface.EventWritable, ev.Kind)

	require.NoError(t, p.Remove(w, iface.InterestWrite))
	require.NoError(t, p.Register(r, iface.InterestNone, iface.InterestRead, false))
	require.NoError(t, p.Remove(r, iface.InterestRead))
}

func TestWakeUnblocksWait(t *testing.T) {
	p := newPoller(t)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = p.Wake()
	}()
	n, err := p.Wait(-1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTasksRunAfterWake(t *testing.T) {
	p := newPoller(t)
	ran := 0
	require.NoError(t, p.AddTask(func(arg PollTaskArg) error {
		ran += arg.(int)
		return nil
	}, 2))

	_, err := p.Wait(-1)
	require.NoError(t, err)
	assert.Equal(t, 1, p.RunTasks())
	assert.Equal(t, 2, ran)
}

func TestProcessAlreadyExited(t *testing.T) {
	p := newPoller(t)
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())

	_, err := p.RegisterProcess(cmd.Process.Pid)
	assert.ErrorIs(t, err, errs.ErrProcessExited)
}

func TestProcessExitEvent(t *testing.T) {
	p := newPoller(t)
	cmd := exec.Command("sleep", "0.1")
	require.NoError(t, cmd.Start())

	handle, err := p.RegisterProcess(cmd.Process.Pid)
	require.NoError(t, err)

	ev, ok := waitFor(t, p, handle, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, iface.EventProcessExited, ev.Kind)

	require.NoError(t, p.RemoveProcess(handle))
	require.NoError(t, cmd.Wait())
}

func TestClosedPoller(t *testing.T) {
	p, err := New(&iface.Options{EventBatch: 64})
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Wait(0)
	assert.ErrorIs(t, err, errs.ErrPollerClosed)
	assert.ErrorIs(t, p.Wake(), errs.ErrPollerClosed)
}

func TestNewReactorModel(t *testing.T) {
	r, err := NewReactor(nil)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, iface.ModelReadiness, r.Model())
	_, ok := r.(iface.IReadinessReactor)
	assert.True(t, ok)
}
