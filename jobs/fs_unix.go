//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package jobs

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils"
	"github.com/moqsien/gkasync/utils/byteslice"
	"github.com/moqsien/gkasync/utils/errs"
)

const direntBufSize = 8192

func (that *ReadJob) work(_ context.Context, intr *interrupter) (int64, error) {
	p, err := span(that.buf, that.offset, that.length)
	if err != nil {
		return -1, err
	}
	if that.position >= 0 {
		n, err := unix.Pread(that.fd, p, that.position)
		return int64(n), utils.SysError("pread", err)
	}
	for {
		if err = intr.waitFd(that.fd, unix.POLLIN); err != nil {
			return -1, err
		}
		n, err := unix.Read(that.fd, p)
		switch err {
		case unix.EAGAIN, unix.EINTR:
			continue
		case nil:
			return int64(n), nil
		}
		return -1, utils.SysError("read", err)
	}
}

func (that *WriteJob) work(_ context.Context, intr *interrupter) (int64, error) {
	p, err := span(that.buf, that.offset, that.length)
	if err != nil {
		return -1, err
	}
	if that.position >= 0 {
		n, err := unix.Pwrite(that.fd, p, that.position)
		return int64(n), utils.SysError("pwrite", err)
	}
	for {
		if err = intr.waitFd(that.fd, unix.POLLOUT); err != nil {
			return -1, err
		}
		n, err := unix.Write(that.fd, p)
		switch err {
		case unix.EAGAIN, unix.EINTR:
			continue
		case nil:
			return int64(n), nil
		}
		return -1, utils.SysError("write", err)
	}
}

func (that *OpenJob) work(_ context.Context, _ *interrupter) (int64, error) {
	flags := unix.O_CLOEXEC
	switch that.flags.Access {
	case ReadOnly:
		flags |= unix.O_RDONLY
	case WriteOnly:
		flags |= unix.O_WRONLY
	case ReadWrite:
		flags |= unix.O_RDWR
	default:
		return -1, errs.ErrInvalidArgument
	}
	if that.flags.Create {
		flags |= unix.O_CREAT
	}
	if that.flags.Append {
		flags |= unix.O_APPEND
	}
	if that.flags.Truncate {
		flags |= unix.O_TRUNC
	}
	switch that.flags.Sync {
	case SyncData:
		flags |= oDataSync
	case SyncFull:
		flags |= unix.O_SYNC
	}
	fd, err := unix.Open(that.path, flags, that.mode)
	if err != nil {
		return -1, utils.SysError("open", err)
	}
	var st unix.Stat_t
	if err = unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return -1, utils.SysError("fstat", err)
	}
	that.fd, that.kind = fd, sys.KindFromMode(uint32(st.Mode))
	return int64(fd), nil
}

func fileInfo(st *unix.Stat_t) FileInfo {
	atime, mtime, ctime := statTimes(st)
	return FileInfo{
		Kind:  sys.KindFromMode(uint32(st.Mode)),
		Mode:  uint32(st.Mode) &^ unix.S_IFMT,
		Size:  st.Size,
		Atime: atime,
		Mtime: mtime,
		Ctime: ctime,
	}
}

func (that *StatJob) work(_ context.Context, _ *interrupter) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(that.fd, &st); err != nil {
		return -1, utils.SysError("fstat", err)
	}
	that.info = fileInfo(&st)
	return st.Size, nil
}

func (that *StatPathJob) work(_ context.Context, _ *interrupter) (int64, error) {
	var st unix.Stat_t
	if that.follow {
		if err := unix.Stat(that.path, &st); err != nil {
			return -1, utils.SysError("stat", err)
		}
	} else if err := unix.Lstat(that.path, &st); err != nil {
		return -1, utils.SysError("lstat", err)
	}
	that.info = fileInfo(&st)
	return st.Size, nil
}

func (that *AccessJob) work(_ context.Context, _ *interrupter) (int64, error) {
	mode := uint32(unix.F_OK)
	if that.mode.Read {
		mode |= unix.R_OK
	}
	if that.mode.Write {
		mode |= unix.W_OK
	}
	if that.mode.Execute {
		mode |= unix.X_OK
	}
	return 0, utils.SysError("access", unix.Access(that.path, mode))
}

func (that *ChmodJob) work(_ context.Context, _ *interrupter) (int64, error) {
	return 0, utils.SysError("chmod", unix.Chmod(that.path, that.mode))
}

func (that *UnlinkJob) work(_ context.Context, _ *interrupter) (int64, error) {
	err := unix.Unlink(that.path)
	if err == nil {
		return 0, nil
	}
	if err == unix.EISDIR || err == unix.EPERM {
		if e := unix.Rmdir(that.path); e == nil {
			return 0, nil
		} else if e != unix.ENOTDIR {
			err = e
		}
	}
	return -1, utils.SysError("unlink", err)
}

func (that *SymlinkJob) work(_ context.Context, _ *interrupter) (int64, error) {
	return 0, utils.SysError("symlink", unix.Symlink(that.target, that.path))
}

func (that *MkdirJob) work(_ context.Context, _ *interrupter) (int64, error) {
	return 0, utils.SysError("mkdir", unix.Mkdir(that.path, that.mode))
}

func (that *RmdirJob) work(_ context.Context, _ *interrupter) (int64, error) {
	return 0, utils.SysError("rmdir", unix.Rmdir(that.path))
}

// Dir is an open directory stream.
type Dir struct {
	fd    int
	buf   []byte
	names []string
}

func (that *OpenDirJob) work(_ context.Context, _ *interrupter) (int64, error) {
	fd, err := unix.Open(that.path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, utils.SysError("opendir", err)
	}
	that.dir = &Dir{fd: fd, buf: byteslice.Get(direntBufSize)}
	return int64(fd), nil
}

func (that *Dir) next() (string, bool, error) {
	for len(that.names) == 0 {
		if that.fd < 0 {
			return "", false, errs.ErrInvalidState
		}
		n, err := unix.ReadDirent(that.fd, that.buf)
		if err == unix.EINTR {
			continue
		} else if err != nil {
			return "", false, utils.SysError("readdir", err)
		}
		if n <= 0 {
			return "", false, nil
		}
		_, _, that.names = unix.ParseDirent(that.buf[:n], -1, that.names)
	}
	name := that.names[0]
	that.names = that.names[1:]
	return name, true, nil
}

func (that *Dir) Close() error {
	if that.fd < 0 {
		return nil
	}
	err := unix.Close(that.fd)
	that.fd = -1
	byteslice.Put(that.buf)
	that.buf, that.names = nil, nil
	return utils.SysError("closedir", err)
}
