//go:build linux || darwin || freebsd || netbsd || dragonfly

package socket

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/moqsien/gkasync/iface"
	"github.com/moqsien/gkasync/sys"
)

type IListener interface {
	iface.IFd
	Addr() net.Addr
	IsUDP() bool
	Close() error
}

// FdListener exposes a non-blocking duplicate of a net listener's fd so it
// can be registered with the reactor.
type FdListener struct {
	fd    int
	addr  net.Addr
	isUDP bool
	owner io.Closer
}

func (that *FdListener) Close() (err error) {
	if that.fd < 0 {
		return nil
	}
	err = syscall.Close(that.fd)
	if e := that.owner.Close(); err == nil {
		err = e
	}
	that.fd = -1
	return
}

func (that *FdListener) Addr() net.Addr {
	return that.addr
}

func (that *FdListener) GetFd() int {
	return that.fd
}

func (that *FdListener) IsUDP() bool {
	return that.isUDP
}

type filer interface {
	File() (*os.File, error)
}

// ResolveFd duplicates the fd behind ln and switches it to non-blocking.
func ResolveFd(ln interface{}) (fd int, err error) {
	switch ln.(type) {
	case *net.TCPListener, *net.UnixListener, *net.UDPConn:
	default:
		return -1, errors.New("unsupported Listener")
	}
	file, err := ln.(filer).File()
	if err != nil {
		return -1, err
	}
	defer file.Close()
	if fd, err = syscall.Dup(int(file.Fd())); err != nil {
		return -1, err
	}
	syscall.CloseOnExec(fd)
	if err = sys.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return -1, err
	}
	return fd, nil
}

func Listen(network, address string) (gl IListener, err error) {
	if strings.Contains(network, "udp") {
		var addr *net.UDPAddr
		addr, err = net.ResolveUDPAddr(network, address)
		if err != nil {
			return nil, err
		}
		var l *net.UDPConn
		l, err = net.ListenUDP(network, addr)
		if err != nil {
			return nil, err
		}
		return AdaptUDPConn(l)
	}
	var l net.Listener
	l, err = net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return AdaptListener(l)
}

func AdaptListener(l net.Listener) (gl IListener, err error) {
	fd, err := ResolveFd(l)
	if err != nil {
		l.Close()
		return nil, err
	}
	gl = &FdListener{
		fd:    fd,
		addr:  l.Addr(),
		owner: l,
	}
	return
}

func AdaptUDPConn(c *net.UDPConn) (gl IListener, err error) {
	fd, err := ResolveFd(c)
	if err != nil {
		c.Close()
		return nil, err
	}
	gl = &FdListener{
		fd:    fd,
		addr:  c.LocalAddr(),
		isUDP: true,
		owner: c,
	}
	return
}
