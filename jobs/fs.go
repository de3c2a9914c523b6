package jobs

import (
	"context"
	"path/filepath"
	"time"

	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils/errs"
)

func span(buf []byte, offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > len(buf) {
		return nil, errs.ErrInvalidArgument
	}
	return buf[offset : offset+length], nil
}

type SleepJob struct {
	jobBase
	d time.Duration
}

func NewSleepJob(ms int) *SleepJob {
	return &SleepJob{d: time.Duration(ms) * time.Millisecond}
}

func (that *SleepJob) work(ctx context.Context, intr *interrupter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	return 0, intr.sleep(that.d)
}

// ReadJob reads into buf[offset:offset+length]. A negative position reads
// at the current file offset.
type ReadJob struct {
	jobBase
	fd       sys.Handle
	buf      []byte
	offset   int
	length   int
	position int64
}

func NewReadJob(fd sys.Handle, buf []byte, offset, length int, position int64) *ReadJob {
	return &ReadJob{fd: fd, buf: buf, offset: offset, length: length, position: position}
}

type WriteJob struct {
	jobBase
	fd       sys.Handle
	buf      []byte
	offset   int
	length   int
	position int64
}

func NewWriteJob(fd sys.Handle, buf []byte, offset, length int, position int64) *WriteJob {
	return &WriteJob{fd: fd, buf: buf, offset: offset, length: length, position: position}
}

type AccessKind int

const (
	ReadOnly AccessKind = iota
	WriteOnly
	ReadWrite
)

type SyncMode int

const (
	SyncNone SyncMode = iota
	SyncData
	SyncFull
)

type OpenFlags struct {
	Access   AccessKind
	Create   bool
	Append   bool
	Truncate bool
	Sync     SyncMode
}

// OpenJob opens a file. The handle belongs to the job until Result is
// called; an unfetched handle is closed when the job is released.
type OpenJob struct {
	jobBase
	path    string
	flags   OpenFlags
	mode    uint32
	fd      sys.Handle
	kind    sys.FileKind
	fetched bool
}

func NewOpenJob(path string, flags OpenFlags, mode uint32) *OpenJob {
	j := &OpenJob{path: path, flags: flags, mode: mode, fd: sys.InvalidHandle}
	j.cleanup = func() {
		if !j.fetched && j.fd != sys.InvalidHandle {
			sys.CloseFd(j.fd)
		}
	}
	return j
}

func (that *OpenJob) Result() (sys.Handle, sys.FileKind) {
	if !that.Done() || that.err != nil {
		return sys.InvalidHandle, sys.KindUnknown
	}
	that.fetched = true
	return that.fd, that.kind
}

type FileInfo struct {
	Kind  sys.FileKind
	Mode  uint32
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

type StatJob struct {
	jobBase
	fd   sys.Handle
	info FileInfo
}

func NewStatJob(fd sys.Handle) *StatJob {
	return &StatJob{fd: fd}
}

func (that *StatJob) Info() FileInfo {
	return that.info
}

type StatPathJob struct {
	jobBase
	path   string
	follow bool
	info   FileInfo
}

func NewStatPathJob(path string, followSymlink bool) *StatPathJob {
	return &StatPathJob{path: path, follow: followSymlink}
}

func (that *StatPathJob) Info() FileInfo {
	return that.info
}

// AccessMode selects the checks of an AccessJob; an empty mode checks
// existence only.
type AccessMode struct {
	Exists  bool
	Read    bool
	Write   bool
	Execute bool
}

type AccessJob struct {
	jobBase
	path string
	mode AccessMode
}

func NewAccessJob(path string, mode AccessMode) *AccessJob {
	return &AccessJob{path: path, mode: mode}
}

type ChmodJob struct {
	jobBase
	path string
	mode uint32
}

func NewChmodJob(path string, mode uint32) *ChmodJob {
	return &ChmodJob{path: path, mode: mode}
}

type FsyncJob struct {
	jobBase
	fd       sys.Handle
	onlyData bool
}

func NewFsyncJob(fd sys.Handle, onlyData bool) *FsyncJob {
	return &FsyncJob{fd: fd, onlyData: onlyData}
}

// UnlinkJob removes a file, or an empty directory where the platform lets
// unlink fall back to rmdir.
type UnlinkJob struct {
	jobBase
	path string
}

func NewUnlinkJob(path string) *UnlinkJob {
	return &UnlinkJob{path: path}
}

type SymlinkJob struct {
	jobBase
	target string
	path   string
}

func NewSymlinkJob(target, path string) *SymlinkJob {
	return &SymlinkJob{target: target, path: path}
}

type MkdirJob struct {
	jobBase
	path string
	mode uint32
}

func NewMkdirJob(path string, mode uint32) *MkdirJob {
	return &MkdirJob{path: path, mode: mode}
}

type RmdirJob struct {
	jobBase
	path string
}

func NewRmdirJob(path string) *RmdirJob {
	return &RmdirJob{path: path}
}

// OpenDirJob opens a directory stream. An unfetched Dir is closed when the
// job is released.
type OpenDirJob struct {
	jobBase
	path    string
	dir     *Dir
	fetched bool
}

func NewOpenDirJob(path string) *OpenDirJob {
	j := &OpenDirJob{path: path}
	j.cleanup = func() {
		if !j.fetched && j.dir != nil {
			j.dir.Close()
		}
	}
	return j
}

func (that *OpenDirJob) Result() *Dir {
	if !that.Done() || that.err != nil {
		return nil
	}
	that.fetched = true
	return that.dir
}

// ReadDirJob reads the next entry of dir, skipping "." and "..".
type ReadDirJob struct {
	jobBase
	dir  *Dir
	name string
	end  bool
}

func NewReadDirJob(dir *Dir) *ReadDirJob {
	return &ReadDirJob{dir: dir}
}

// Name returns the entry read, or false at the end of the directory.
func (that *ReadDirJob) Name() (string, bool) {
	if !that.Done() || that.err != nil || that.end {
		return "", false
	}
	return that.name, true
}

func (that *ReadDirJob) work(_ context.Context, _ *interrupter) (int64, error) {
	if that.dir == nil {
		return -1, errs.ErrInvalidArgument
	}
	name, ok, err := that.dir.next()
	if err != nil {
		return -1, err
	}
	if !ok {
		that.end = true
		return 0, nil
	}
	that.name = name
	return 1, nil
}

type RealPathJob struct {
	jobBase
	path     string
	resolved string
}

func NewRealPathJob(path string) *RealPathJob {
	return &RealPathJob{path: path}
}

func (that *RealPathJob) Path() string {
	return that.resolved
}

func (that *RealPathJob) work(_ context.Context, _ *interrupter) (int64, error) {
	abs, err := filepath.Abs(that.path)
	if err != nil {
		return -1, err
	}
	if abs, err = filepath.EvalSymlinks(abs); err != nil {
		return -1, err
	}
	that.resolved = abs
	return int64(len(abs)), nil
}
