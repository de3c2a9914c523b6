package tlsengine

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/panjf2000/gnet/v2/pkg/buffer/elastic"
)

const bioBufferSize = 16 << 10

type memAddr struct{}

func (memAddr) Network() string { return "memory" }
func (memAddr) String() string  { return "memory" }

// operation is a tls.Conn call running on a helper goroutine.
type operation struct {
	done bool
	n    int
	err  error
}

// memBIO is the net.Conn a tls.Conn talks to. Reads park once inbound
// ciphertext runs out, which is how the session learns it needs more input.
type memBIO struct {
	mu       sync.Mutex
	cond     *sync.Cond
	in       *elastic.Buffer
	out      *elastic.Buffer
	starving bool
	eof      bool
	closed   bool
}

func newMemBIO() (*memBIO, error) {
	in, err := elastic.New(bioBufferSize)
	if err != nil {
		return nil, err
	}
	out, err := elastic.New(bioBufferSize)
	if err != nil {
		in.Release()
		return nil, err
	}
	b := &memBIO{in: in, out: out}
	b.cond = sync.NewCond(&b.mu)
	return b, nil
}

func (that *memBIO) Read(p []byte) (int, error) {
	that.mu.Lock()
	defer that.mu.Unlock()
	for that.in.IsEmpty() && !that.eof && !that.closed {
		that.starving = true
		that.cond.Broadcast()
		that.cond.Wait()
	}
	that.starving = false
	if that.closed {
		return 0, net.ErrClosed
	}
	if that.in.IsEmpty() {
		return 0, io.EOF
	}
	return that.in.Read(p)
}

func (that *memBIO) Write(p []byte) (int, error) {
	that.mu.Lock()
	defer that.mu.Unlock()
	if that.closed {
		return 0, net.ErrClosed
	}
	return that.out.Write(p)
}

func (that *memBIO) Close() error {
	that.mu.Lock()
	if !that.closed {
		that.closed = true
		that.cond.Broadcast()
	}
	that.mu.Unlock()
	return nil
}

func (that *memBIO) LocalAddr() net.Addr                { return memAddr{} }
func (that *memBIO) RemoteAddr() net.Addr               { return memAddr{} }
func (that *memBIO) SetDeadline(t time.Time) error      { return nil }
func (that *memBIO) SetReadDeadline(t time.Time) error  { return nil }
func (that *memBIO) SetWriteDeadline(t time.Time) error { return nil }

func (that *memBIO) feed(p []byte) {
	if len(p) == 0 {
		return
	}
	that.mu.Lock()
	that.in.Write(p)
	that.cond.Broadcast()
	that.mu.Unlock()
}

func (that *memBIO) setEOF() {
	that.mu.Lock()
	that.eof = true
	that.cond.Broadcast()
	that.mu.Unlock()
}

func (that *memBIO) start(f func() (int, error)) *operation {
	op := &operation{}
	go func() {
		n, err := f()
		that.mu.Lock()
		op.n, op.err, op.done = n, err, true
		that.cond.Broadcast()
		that.mu.Unlock()
	}()
	return op
}

// await blocks until op finishes or stalls on an empty input buffer, and
// reports whether it finished.
func (that *memBIO) await(op *operation) bool {
	that.mu.Lock()
	defer that.mu.Unlock()
	for !op.done && !(that.starving && that.in.IsEmpty() && !that.eof && !that.closed) {
		that.cond.Wait()
	}
	return op.done
}

// drain moves pending ciphertext into dst, reusing its capacity.
func (that *memBIO) drain(dst []byte) []byte {
	that.mu.Lock()
	defer that.mu.Unlock()
	n := that.out.Buffered()
	if n == 0 {
		return dst[:0]
	}
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	m, _ := that.out.Read(dst)
	return dst[:m]
}

func (that *memBIO) release() {
	that.mu.Lock()
	that.in.Release()
	that.out.Release()
	that.mu.Unlock()
}
