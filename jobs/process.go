package jobs

import (
	"context"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/moqsien/gkasync/sys"
)

// SpawnSpec describes a child process. Args includes argv[0]; a nil Env
// inherits the environment and a Stdio entry of sys.InvalidHandle inherits
// the matching standard stream.
type SpawnSpec struct {
	Path  string
	Args  []string
	Env   []string
	Stdio [3]sys.Handle
	Dir   string
}

// SpawnJob starts a process; Ret is its pid.
type SpawnJob struct {
	jobBase
	spec SpawnSpec
}

func NewSpawnJob(spec SpawnSpec) *SpawnJob {
	return &SpawnJob{spec: spec}
}

func (that *SpawnJob) work(_ context.Context, _ *interrupter) (int64, error) {
	path := that.spec.Path
	if !strings.ContainsRune(path, '/') && !strings.ContainsRune(path, os.PathSeparator) {
		lp, err := exec.LookPath(path)
		if err != nil {
			return -1, &os.PathError{Op: "spawn", Path: path, Err: errNotFound}
		}
		path = lp
	}
	argv := that.spec.Args
	if len(argv) == 0 {
		argv = []string{that.spec.Path}
	}
	env := that.spec.Env
	if env == nil {
		env = os.Environ()
	}
	files, err := stdioFiles(that.spec.Stdio)
	if err != nil {
		return -1, err
	}
	pid, h, err := syscall.StartProcess(path, argv, &syscall.ProcAttr{
		Dir:   that.spec.Dir,
		Env:   env,
		Files: files,
	})
	if err != nil {
		return -1, &os.PathError{Op: "spawn", Path: path, Err: err}
	}
	closeProcessHandle(h)
	return int64(pid), nil
}

// WaitProcessJob waits for a child to exit; Ret is its exit status.
type WaitProcessJob struct {
	jobBase
	pid int
}

func NewWaitProcessJob(pid int) *WaitProcessJob {
	return &WaitProcessJob{pid: pid}
}

// GetAddrInfoJob resolves host; Ret is the number of addresses.
type GetAddrInfoJob struct {
	jobBase
	host  string
	addrs []net.IPAddr
}

func NewGetAddrInfoJob(host string) *GetAddrInfoJob {
	return &GetAddrInfoJob{host: host}
}

func (that *GetAddrInfoJob) Addrs() []net.IPAddr {
	if !that.Done() || that.err != nil {
		return nil
	}
	return that.addrs
}

func (that *GetAddrInfoJob) work(ctx context.Context, _ *interrupter) (int64, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, that.host)
	if err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		return -1, err
	}
	that.addrs = addrs
	return int64(len(addrs)), nil
}
