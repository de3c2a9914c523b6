//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package jobs

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils/errs"
)

// run executes job and waits for its completion. The worker stays parked
// holding the job until the pool is destroyed.
func run(t *testing.T, p *Pool, n chanNotifier, job Job) {
	t.Helper()
	_, err := p.Acquire(1, job)
	require.NoError(t, err)
	waitID(t, n)
}

func TestPipeRoundTrip(t *testing.T) {
	p, n := newTestPool(t)

	for _, size := range []int{0, 1, 4096, 1 << 20} {
		r, w, err := os.Pipe()
		require.NoError(t, err)

		src := bytes.Repeat([]byte{'x'}, size)
		go func() {
			w.Write(src)
			w.Close()
		}()

		var got []byte
		buf := make([]byte, 64<<10)
		for {
			job := NewReadJob(int(r.Fd()), buf, 0, len(buf), -1)
			wk, err := p.Acquire(2, job)
			require.NoError(t, err)
			waitID(t, n)
			require.NoError(t, job.Err())
			ret := job.Ret()
			p.Recycle(wk)
			if ret == 0 {
				break
			}
			got = append(got, buf[:ret]...)
		}
		assert.Equal(t, size, len(got), "size %d", size)
		r.Close()
	}
}

func TestFileWriteReadRoundTrip(t *testing.T) {
	p, n := newTestPool(t)
	dir := t.TempDir()

	for _, size := range []int{0, 1, 4096, 1 << 20} {
		open := NewOpenJob(filepath.Join(dir, fmt.Sprintf("rt-%d", size)),
			OpenFlags{Access: ReadWrite, Create: true, Truncate: true, Sync: SyncData}, 0o644)
		run(t, p, n, open)
		require.NoError(t, open.Err())
		fd, _ := open.Result()

		src := make([]byte, size)
		_, err := rand.Read(src)
		require.NoError(t, err)
		for off := 0; off < size; {
			write := NewWriteJob(fd, src, off, size-off, int64(off))
			run(t, p, n, write)
			require.NoError(t, write.Err())
			require.Greater(t, write.Ret(), int64(0))
			off += int(write.Ret())
		}

		dst := make([]byte, size)
		for off := 0; off < size; {
			read := NewReadJob(fd, dst, off, size-off, int64(off))
			run(t, p, n, read)
			require.NoError(t, read.Err())
			require.Greater(t, read.Ret(), int64(0), "short file at %d of %d", off, size)
			off += int(read.Ret())
		}
		assert.True(t, bytes.Equal(src, dst), "size %d", size)

		tail := NewReadJob(fd, make([]byte, 1), 0, 1, int64(size))
		run(t, p, n, tail)
		require.NoError(t, tail.Err())
		assert.Equal(t, int64(0), tail.Ret())
		require.NoError(t, sys.CloseFd(fd))
	}
}

func TestCancelPipeRead(t *testing.T) {
	p, n := newTestPool(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	job := NewReadJob(int(r.Fd()), make([]byte, 16), 0, 16, -1)
	wk := p.SpawnWorker(9, job)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, CancelInterrupted, wk.Cancel())
	waitID(t, n)
	assert.True(t, errs.IsCancelled(job.Err()))

	// the stale interrupt is drained before the next job runs
	go w.Write([]byte("ok"))
	next := NewReadJob(int(r.Fd()), make([]byte, 16), 0, 16, -1)
	wk.Wake(10, next)
	waitID(t, n)
	require.NoError(t, next.Err())
	assert.Equal(t, int64(2), next.Ret())
}

func TestReadInvalidSpan(t *testing.T) {
	p, n := newTestPool(t)
	job := NewReadJob(0, make([]byte, 4), 2, 4, -1)
	run(t, p, n, job)
	assert.ErrorIs(t, job.Err(), errs.ErrInvalidArgument)
	assert.Equal(t, int64(-1), job.Ret())
}

func TestFileJobs(t *testing.T) {
	p, n := newTestPool(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	open := NewOpenJob(path, OpenFlags{Access: ReadWrite, Create: true, Truncate: true}, 0o644)
	run(t, p, n, open)
	require.NoError(t, open.Err())
	fd, kind := open.Result()
	require.NotEqual(t, sys.InvalidHandle, fd)
	assert.Equal(t, sys.KindRegular, kind)
	defer sys.CloseFd(fd)

	data := []byte("hello world")
	write := NewWriteJob(fd, data, 0, len(data), 0)
	run(t, p, n, write)
	require.NoError(t, write.Err())
	assert.Equal(t, int64(len(data)), write.Ret())

	fsync := NewFsyncJob(fd, true)
	run(t, p, n, fsync)
	assert.NoError(t, fsync.Err())

	buf := make([]byte, 5)
	read := NewReadJob(fd, buf, 0, 5, 6)
	run(t, p, n, read)
	require.NoError(t, read.Err())
	assert.Equal(t, "world", string(buf))

	stat := NewStatJob(fd)
	run(t, p, n, stat)
	require.NoError(t, stat.Err())
	assert.Equal(t, int64(len(data)), stat.Info().Size)
	assert.Equal(t, sys.KindRegular, stat.Info().Kind)

	chmod := NewChmodJob(path, 0o600)
	run(t, p, n, chmod)
	require.NoError(t, chmod.Err())

	stp := NewStatPathJob(path, true)
	run(t, p, n, stp)
	require.NoError(t, stp.Err())
	assert.Equal(t, uint32(0o600), stp.Info().Mode&0o777)

	access := NewAccessJob(path, AccessMode{Read: true, Write: true})
	run(t, p, n, access)
	assert.NoError(t, access.Err())

	missing := NewAccessJob(filepath.Join(dir, "nope"), AccessMode{Exists: true})
	run(t, p, n, missing)
	assert.True(t, errs.IsNotFound(missing.Err()))

	link := filepath.Join(dir, "link")
	sym := NewSymlinkJob(path, link)
	run(t, p, n, sym)
	require.NoError(t, sym.Err())

	lst := NewStatPathJob(link, false)
	run(t, p, n, lst)
	require.NoError(t, lst.Err())
	assert.Equal(t, sys.KindSymLink, lst.Info().Kind)

	rp := NewRealPathJob(link)
	run(t, p, n, rp)
	require.NoError(t, rp.Err())
	want, _ := filepath.EvalSymlinks(path)
	assert.Equal(t, want, rp.Path())

	again := NewOpenJob(path, OpenFlags{Access: ReadOnly, Create: true}, 0o644)
	run(t, p, n, again)
	assert.NoError(t, again.Err())

	unlink := NewUnlinkJob(link)
	run(t, p, n, unlink)
	assert.NoError(t, unlink.Err())
	_, err := os.Lstat(link)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenMissing(t *testing.T) {
	p, n := newTestPool(t)
	job := NewOpenJob(filepath.Join(t.TempDir(), "missing"), OpenFlags{Access: ReadOnly}, 0)
	run(t, p, n, job)
	assert.True(t, errs.IsNotFound(job.Err()))
	fd, _ := job.Result()
	assert.Equal(t, sys.InvalidHandle, fd)
}

func TestDirectoryJobs(t *testing.T) {
	p, n := newTestPool(t)
	dir := t.TempDir()

	mk := NewMkdirJob(filepath.Join(dir, "sub"), 0o755)
	run(t, p, n, mk)
	require.NoError(t, mk.Err())

	dup := NewMkdirJob(filepath.Join(dir, "sub"), 0o755)
	run(t, p, n, dup)
	assert.True(t, errs.IsExists(dup.Err()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f1"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f2"), nil, 0o644))

	od := NewOpenDirJob(dir)
	run(t, p, n, od)
	require.NoError(t, od.Err())
	d := od.Result()
	require.NotNil(t, d)

	var names []string
	for {
		rd := NewReadDirJob(d)
		run(t, p, n, rd)
		require.NoError(t, rd.Err())
		name, ok := rd.Name()
		if !ok {
			break
		}
		names = append(names, name)
	}
	require.NoError(t, d.Close())
	sort.Strings(names)
	assert.Equal(t, []string{"f1", "f2", "sub"}, names)

	rm := NewRmdirJob(filepath.Join(dir, "sub"))
	run(t, p, n, rm)
	assert.NoError(t, rm.Err())

	unlinkDir := NewUnlinkJob(dir)
	run(t, p, n, unlinkDir)
	assert.Error(t, unlinkDir.Err())
}

func TestSpawnAndWait(t *testing.T) {
	p, n := newTestPool(t)

	spawn := NewSpawnJob(SpawnSpec{
		Path:  "sh",
		Args:  []string{"sh", "-c", "exit 3"},
		Stdio: [3]sys.Handle{sys.InvalidHandle, sys.InvalidHandle, sys.InvalidHandle},
	})
	run(t, p, n, spawn)
	require.NoError(t, spawn.Err())
	require.Greater(t, spawn.Ret(), int64(0))

	wait := NewWaitProcessJob(int(spawn.Ret()))
	run(t, p, n, wait)
	require.NoError(t, wait.Err())
	assert.Equal(t, int64(3), wait.Ret())
}

func TestCancelWaitProcess(t *testing.T) {
	p, n := newTestPool(t)

	spawn := NewSpawnJob(SpawnSpec{
		Path:  "sleep",
		Args:  []string{"sleep", "10"},
		Stdio: [3]sys.Handle{sys.InvalidHandle, sys.InvalidHandle, sys.InvalidHandle},
	})
	run(t, p, n, spawn)
	require.NoError(t, spawn.Err())
	pid := int(spawn.Ret())

	wait := NewWaitProcessJob(pid)
	w := p.SpawnWorker(5, wait)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, CancelInterrupted, w.Cancel())
	waitID(t, n)
	assert.True(t, errs.IsCancelled(wait.Err()))

	require.NoError(t, sys.Kill(pid))
	status, err := sys.ExitStatus(pid)
	require.NoError(t, err)
	assert.Equal(t, 128+9, status)
}

func TestSpawnNotFound(t *testing.T) {
	p, n := newTestPool(t)
	spawn := NewSpawnJob(SpawnSpec{
		Path:  "definitely-not-a-real-program",
		Stdio: [3]sys.Handle{sys.InvalidHandle, sys.InvalidHandle, sys.InvalidHandle},
	})
	run(t, p, n, spawn)
	assert.True(t, errs.IsNotFound(spawn.Err()))
}

func TestGetAddrInfoLocalhost(t *testing.T) {
	p, n := newTestPool(t)
	job := NewGetAddrInfoJob("localhost")
	run(t, p, n, job)
	require.NoError(t, job.Err())
	assert.Equal(t, int64(len(job.Addrs())), job.Ret())
	assert.NotEmpty(t, job.Addrs())
}
