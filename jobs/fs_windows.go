//go:build windows

package jobs

import (
	"context"
	"time"

	"golang.org/x/sys/windows"

	"github.com/moqsien/gkasync/sys"
	"github.com/moqsien/gkasync/utils"
	"github.com/moqsien/gkasync/utils/errs"
)

const symlinkAllowUnprivileged = 0x2

func positioned(position int64) *windows.Overlapped {
	if position < 0 {
		return nil
	}
	return &windows.Overlapped{Offset: uint32(position), OffsetHigh: uint32(position >> 32)}
}

func (that *ReadJob) work(_ context.Context, _ *interrupter) (int64, error) {
	p, err := span(that.buf, that.offset, that.length)
	if err != nil {
		return -1, err
	}
	var n uint32
	err = windows.ReadFile(that.fd, p, &n, positioned(that.position))
	if err == windows.ERROR_HANDLE_EOF || err == windows.ERROR_BROKEN_PIPE {
		return 0, nil
	}
	return int64(n), utils.SysError("ReadFile", err)
}

func (that *WriteJob) work(_ context.Context, _ *interrupter) (int64, error) {
	p, err := span(that.buf, that.offset, that.length)
	if err != nil {
		return -1, err
	}
	var n uint32
	err = windows.WriteFile(that.fd, p, &n, positioned(that.position))
	return int64(n), utils.SysError("WriteFile", err)
}

func (that *OpenJob) work(_ context.Context, _ *interrupter) (int64, error) {
	var access uint32
	switch that.flags.Access {
	case ReadOnly:
		access = windows.GENERIC_READ
	case WriteOnly:
		access = windows.GENERIC_WRITE
	case ReadWrite:
		access = windows.GENERIC_READ | windows.GENERIC_WRITE
	default:
		return -1, errs.ErrInvalidArgument
	}
	if that.flags.Append {
		access &^= windows.GENERIC_WRITE
		access |= windows.FILE_APPEND_DATA
	}
	var disposition uint32
	switch {
	case that.flags.Create && that.flags.Truncate:
		disposition = windows.CREATE_ALWAYS
	case that.flags.Create:
		disposition = windows.OPEN_ALWAYS
	case that.flags.Truncate:
		disposition = windows.TRUNCATE_EXISTING
	default:
		disposition = windows.OPEN_EXISTING
	}
	attrs := uint32(windows.FILE_ATTRIBUTE_NORMAL | windows.FILE_FLAG_BACKUP_SEMANTICS)
	if that.flags.Sync != SyncNone {
		attrs |= windows.FILE_FLAG_WRITE_THROUGH
	}
	if that.mode&0o200 == 0 && that.flags.Create {
		attrs |= windows.FILE_ATTRIBUTE_READONLY
	}
	name, err := windows.UTF16PtrFromString(that.path)
	if err != nil {
		return -1, err
	}
	share := uint32(windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE | windows.FILE_SHARE_DELETE)
	h, err := windows.CreateFile(name, access, share, nil, disposition, attrs, 0)
	if err != nil {
		return -1, utils.SysError("CreateFile", err)
	}
	info, err := handleInfo(h)
	if err != nil {
		windows.CloseHandle(h)
		return -1, err
	}
	that.fd, that.kind = h, info.Kind
	return int64(h), nil
}

func handleInfo(h windows.Handle) (FileInfo, error) {
	ft, err := windows.GetFileType(h)
	if err != nil {
		return FileInfo{}, utils.SysError("GetFileType", err)
	}
	if ft != windows.FILE_TYPE_DISK {
		return FileInfo{Kind: sys.KindFromAttributes(0, ft)}, nil
	}
	var d windows.ByHandleFileInformation
	if err = windows.GetFileInformationByHandle(h, &d); err != nil {
		return FileInfo{}, utils.SysError("GetFileInformationByHandle", err)
	}
	mode := uint32(0o666)
	if d.FileAttributes&windows.FILE_ATTRIBUTE_READONLY != 0 {
		mode = 0o444
	}
	if d.FileAttributes&windows.FILE_ATTRIBUTE_DIRECTORY != 0 {
		mode |= 0o111
	}
	return FileInfo{
		Kind:  sys.KindFromAttributes(d.FileAttributes, ft),
		Mode:  mode,
		Size:  int64(d.FileSizeHigh)<<32 | int64(d.FileSizeLow),
		Atime: time.Unix(0, d.LastAccessTime.Nanoseconds()),
		Mtime: time.Unix(0, d.LastWriteTime.Nanoseconds()),
		Ctime: time.Unix(0, d.CreationTime.Nanoseconds()),
	}, nil
}

func (that *StatJob) work(_ context.Context, _ *interrupter) (int64, error) {
	info, err := handleInfo(that.fd)
	if err != nil {
		return -1, err
	}
	that.info = info
	return info.Size, nil
}

func (that *StatPathJob) work(_ context.Context, _ *interrupter) (int64, error) {
	name, err := windows.UTF16PtrFromString(that.path)
	if err != nil {
		return -1, err
	}
	attrs := uint32(windows.FILE_FLAG_BACKUP_SEMANTICS)
	if !that.follow {
		attrs |= windows.FILE_FLAG_OPEN_REPARSE_POINT
	}
	share := uint32(windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE | windows.FILE_SHARE_DELETE)
	h, err := windows.CreateFile(name, 0, share, nil, windows.OPEN_EXISTING, attrs, 0)
	if err != nil {
		return -1, utils.SysError("CreateFile", err)
	}
	defer windows.CloseHandle(h)
	info, err := handleInfo(h)
	if err != nil {
		return -1, err
	}
	that.info = info
	return info.Size, nil
}

func (that *AccessJob) work(_ context.Context, _ *interrupter) (int64, error) {
	name, err := windows.UTF16PtrFromString(that.path)
	if err != nil {
		return -1, err
	}
	attrs, err := windows.GetFileAttributes(name)
	if err != nil {
		return -1, utils.SysError("GetFileAttributes", err)
	}
	if that.mode.Write && attrs&windows.FILE_ATTRIBUTE_READONLY != 0 {
		return -1, utils.SysError("access", windows.ERROR_ACCESS_DENIED)
	}
	return 0, nil
}

func (that *ChmodJob) work(_ context.Context, _ *interrupter) (int64, error) {
	return -1, errs.ErrUnsupportedOp
}

func (that *FsyncJob) work(_ context.Context, _ *interrupter) (int64, error) {
	return 0, utils.SysError("FlushFileBuffers", windows.FlushFileBuffers(that.fd))
}

func (that *UnlinkJob) work(_ context.Context, _ *interrupter) (int64, error) {
	name, err := windows.UTF16PtrFromString(that.path)
	if err != nil {
		return -1, err
	}
	return 0, utils.SysError("DeleteFile", windows.DeleteFile(name))
}

func (that *SymlinkJob) work(_ context.Context, _ *interrupter) (int64, error) {
	link, err := windows.UTF16PtrFromString(that.path)
	if err != nil {
		return -1, err
	}
	target, err := windows.UTF16PtrFromString(that.target)
	if err != nil {
		return -1, err
	}
	flags := uint32(symlinkAllowUnprivileged)
	if attrs, err := windows.GetFileAttributes(target); err == nil && attrs&windows.FILE_ATTRIBUTE_DIRECTORY != 0 {
		flags |= windows.SYMBOLIC_LINK_FLAG_DIRECTORY
	}
	return 0, utils.SysError("CreateSymbolicLink", windows.CreateSymbolicLink(link, target, flags))
}

func (that *MkdirJob) work(_ context.Context, _ *interrupter) (int64, error) {
	name, err := windows.UTF16PtrFromString(that.path)
	if err != nil {
		return -1, err
	}
	return 0, utils.SysError("CreateDirectory", windows.CreateDirectory(name, nil))
}

func (that *RmdirJob) work(_ context.Context, _ *interrupter) (int64, error) {
	name, err := windows.UTF16PtrFromString(that.path)
	if err != nil {
		return -1, err
	}
	return 0, utils.SysError("RemoveDirectory", windows.RemoveDirectory(name))
}

// Dir is an open directory stream.
type Dir struct {
	h       windows.Handle
	data    windows.Win32finddata
	pending bool
}

func (that *OpenDirJob) work(_ context.Context, _ *interrupter) (int64, error) {
	pattern, err := windows.UTF16PtrFromString(that.path + `\*`)
	if err != nil {
		return -1, err
	}
	d := &Dir{}
	if d.h, err = windows.FindFirstFile(pattern, &d.data); err != nil {
		return -1, utils.SysError("FindFirstFile", err)
	}
	d.pending = true
	that.dir = d
	return 0, nil
}

func (that *Dir) next() (string, bool, error) {
	for {
		if that.h == windows.InvalidHandle {
			return "", false, errs.ErrInvalidState
		}
		if !that.pending {
			if err := windows.FindNextFile(that.h, &that.data); err == windows.ERROR_NO_MORE_FILES {
				return "", false, nil
			} else if err != nil {
				return "", false, utils.SysError("FindNextFile", err)
			}
		}
		that.pending = false
		name := windows.UTF16ToString(that.data.FileName[:])
		if name != "." && name != ".." {
			return name, true, nil
		}
	}
}

func (that *Dir) Close() error {
	if that.h == windows.InvalidHandle {
		return nil
	}
	err := windows.FindClose(that.h)
	that.h = windows.InvalidHandle
	return utils.SysError("FindClose", err)
}
