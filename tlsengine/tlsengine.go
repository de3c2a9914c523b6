/*
Package tlsengine exposes TLS as a buffer-in/buffer-out state machine. A
Session never touches a descriptor: callers hand it ciphertext read from the
transport and flush the Output it returns, so the same session can ride on a
reactor-driven socket or on blocking jobs.
*/
package tlsengine

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sort"
	"sync"

	"github.com/moqsien/gkasync/utils/errs"
)

type Status int

const (
	Completed Status = iota
	WantRead
	WantWrite
	Error
	Eof
	ReNegotiate
)

var statusNames = [...]string{"completed", "want-read", "want-write", "error", "eof", "renegotiate"}

func (that Status) String() string {
	if that < 0 || int(that) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[that]
}

type State int

const (
	Uninitialized State = iota
	CredentialsBound
	ContextEstablished
	Established
	Failed
	Closed
)

var stateNames = [...]string{"uninitialized", "credentials-bound", "context-established", "established", "failed", "closed"}

func (that State) String() string {
	if that < 0 || int(that) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[that]
}

// Result is the outcome of one session call. Output must reach the
// transport in full before the next call, whatever the Status. Plaintext
// and Output alias session memory and stay valid until the next call.
type Result struct {
	Status    Status
	Consumed  int
	Output    []byte
	Plaintext []byte
	Err       error
}

// StreamSizes is the record framing fixed once the handshake completes.
type StreamSizes struct {
	Header     int
	Trailer    int
	MaxMessage int
}

type ClientConfig struct {
	ServerName string
	VerifyPeer bool
	RootCAs    *x509.CertPool
	NextProtos []string
	MinVersion uint16
	MaxVersion uint16
}

// ServerConfig selects the server identity. Certificates (or CertFile and
// KeyFile) serve the gotls backend; schannel takes the first certificate
// with a private key from the current user's "MY" store.
type ServerConfig struct {
	Certificates []tls.Certificate
	CertFile     string
	KeyFile      string
	MinVersion   uint16
}

type Session interface {
	InitClient(cfg *ClientConfig) error
	InitServer(cfg *ServerConfig) error
	Handshake(in []byte) Result
	Read(in []byte) Result
	Write(p []byte) Result
	Shutdown() Result
	SetEOF()
	State() State
	StreamSizes() StreamSizes
	Close() error
}

type Backend interface {
	Name() string
	Available() error
	NewSession() (Session, error)
}

// backends are tried in this order by Default.
var preferred = []string{SchannelName, GoTLSName}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Backend)
)

func Register(b Backend) {
	registryMu.Lock()
	registry[b.Name()] = b
	registryMu.Unlock()
}

// Lookup returns the named backend if it is registered and usable here.
func Lookup(name string) (Backend, error) {
	registryMu.RLock()
	b, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tls backend %q: %w", name, errs.ErrUnavailable)
	}
	if err := b.Available(); err != nil {
		return nil, err
	}
	return b, nil
}

// Default returns the first usable backend in preference order.
func Default() (Backend, error) {
	for _, name := range preferred {
		if b, err := Lookup(name); err == nil {
			return b, nil
		}
	}
	return nil, errs.ErrUnavailable
}

func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewSession creates a session on the named backend; an empty name picks
// Default.
func NewSession(backend string) (Session, error) {
	var (
		b   Backend
		err error
	)
	if backend == "" {
		b, err = Default()
	} else {
		b, err = Lookup(backend)
	}
	if err != nil {
		return nil, err
	}
	return b.NewSession()
}

func failure(op string, code uint32, err error) Result {
	return Result{Status: Error, Err: &errs.ProtocolError{Op: op, Code: code, Msg: err.Error()}}
}
