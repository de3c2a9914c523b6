package sys

const (
	DefaultTCPKeepAlive = 15 // Seconds
)

// FileKind is the portable kind of a file system object.
type FileKind int

const (
	KindUnknown FileKind = iota
	KindRegular
	KindDirectory
	KindSymLink
	KindSocket
	KindPipe
	KindBlockDevice
	KindCharDevice
)

var fileKindNames = [...]string{"unknown", "regular", "directory", "symlink", "socket", "pipe", "block-device", "char-device"}

func (that FileKind) String() string {
	if that < 0 || int(that) >= len(fileKindNames) {
		return "unknown"
	}
	return fileKindNames[that]
}
