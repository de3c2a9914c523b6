package tlsengine

import (
	"crypto/tls"
	"errors"
	"io"
	"strings"

	"github.com/moqsien/processes/logger"

	"github.com/moqsien/gkasync/utils/errs"
)

const (
	GoTLSName     = "gotls"
	maxRecordSize = 16384
)

type goTLSBackend struct{}

func (goTLSBackend) Name() string { return GoTLSName }

func (goTLSBackend) Available() error { return nil }

func (goTLSBackend) NewSession() (Session, error) {
	bio, err := newMemBIO()
	if err != nil {
		return nil, err
	}
	return &goSession{bio: bio, plain: make([]byte, maxRecordSize)}, nil
}

func init() {
	Register(goTLSBackend{})
}

// goSession drives crypto/tls over a memBIO. Blocking tls.Conn calls run on
// a helper goroutine and are resumed across session calls.
type goSession struct {
	bio   *memBIO
	conn  *tls.Conn
	state State
	op    *operation
	plain []byte
	text  []byte
	out   []byte
	sizes StreamSizes
}

func (that *goSession) InitClient(cfg *ClientConfig) error {
	if that.state != Uninitialized {
		return errs.ErrInvalidState
	}
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	tc := &tls.Config{
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: !cfg.VerifyPeer,
		RootCAs:            cfg.RootCAs,
		NextProtos:         cfg.NextProtos,
		MinVersion:         minVersion(cfg.MinVersion),
		MaxVersion:         cfg.MaxVersion,
	}
	that.conn = tls.Client(that.bio, tc)
	that.state = CredentialsBound
	return nil
}

func (that *goSession) InitServer(cfg *ServerConfig) error {
	if that.state != Uninitialized {
		return errs.ErrInvalidState
	}
	if cfg == nil {
		return errs.ErrInvalidArgument
	}
	certs := cfg.Certificates
	if len(certs) == 0 {
		if cfg.CertFile == "" {
			return errs.ErrInvalidArgument
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return err
		}
		certs = []tls.Certificate{cert}
	}
	that.conn = tls.Server(that.bio, &tls.Config{
		Certificates: certs,
		MinVersion:   minVersion(cfg.MinVersion),
	})
	that.state = CredentialsBound
	return nil
}

func minVersion(v uint16) uint16 {
	if v == 0 {
		return tls.VersionTLS12
	}
	return v
}

func (that *goSession) Handshake(in []byte) Result {
	switch that.state {
	case Established:
		return Result{Status: Completed}
	case CredentialsBound, ContextEstablished:
	default:
		return Result{Status: Error, Err: errs.ErrInvalidState}
	}
	that.bio.feed(in)
	if that.op == nil {
		that.op = that.bio.start(func() (int, error) { return 0, that.conn.Handshake() })
		that.state = ContextEstablished
	}
	if !that.bio.await(that.op) {
		that.out = that.bio.drain(that.out)
		res := Result{Consumed: len(in), Output: that.out, Status: WantRead}
		if len(res.Output) > 0 {
			res.Status = WantWrite
		}
		return res
	}
	err := that.op.err
	that.op = nil
	if err != nil {
		that.out = that.bio.drain(that.out)
		return that.fail(Result{Consumed: len(in), Output: that.out}, "handshake", err)
	}
	that.state = Established
	that.sizes = streamSizes(that.conn.ConnectionState())

	// application data may ride in the same flight as the peer's Finished
	text, err := that.decrypt()
	if err != nil {
		that.op = &operation{done: true, err: err}
	}
	that.out = that.bio.drain(that.out)
	return Result{Status: Completed, Consumed: len(in), Output: that.out, Plaintext: text}
}

// Read decrypts every complete record fed so far. A trailing partial record
// stays buffered, so Consumed is always len(in).
func (that *goSession) Read(in []byte) Result {
	if that.state != Established {
		return Result{Status: Error, Err: errs.ErrInvalidState}
	}
	that.bio.feed(in)
	text, err := that.decrypt()
	that.out = that.bio.drain(that.out)
	res := Result{Consumed: len(in), Output: that.out}
	if err != nil {
		return that.fail(res, "read", err)
	}
	if len(text) == 0 {
		res.Status = WantRead
		return res
	}
	res.Status, res.Plaintext = Completed, text
	return res
}

// decrypt runs conn.Read until it parks for more input. An error that
// follows some plaintext is kept in that.op and reported by the next call.
func (that *goSession) decrypt() ([]byte, error) {
	that.text = that.text[:0]
	for {
		if that.op == nil {
			buf := that.plain
			that.op = that.bio.start(func() (int, error) { return that.conn.Read(buf) })
		}
		if !that.bio.await(that.op) {
			return that.text, nil
		}
		op := that.op
		if op.n > 0 {
			that.text = append(that.text, that.plain[:op.n]...)
			op.n = 0
		}
		if op.err != nil {
			if len(that.text) > 0 {
				return that.text, nil
			}
			that.op = nil
			return nil, op.err
		}
		that.op = nil
	}
}

func (that *goSession) Write(p []byte) Result {
	if that.state != Established {
		return Result{Status: Error, Err: errs.ErrInvalidState}
	}
	n, err := that.conn.Write(p)
	that.out = that.bio.drain(that.out)
	res := Result{Status: WantWrite, Consumed: n, Output: that.out}
	if err != nil {
		return that.fail(res, "write", err)
	}
	return res
}

// Shutdown queues close_notify. The session can still read until the peer
// closes its side.
func (that *goSession) Shutdown() Result {
	if that.state != Established {
		return Result{Status: Error, Err: errs.ErrInvalidState}
	}
	err := that.conn.CloseWrite()
	that.out = that.bio.drain(that.out)
	res := Result{Status: Completed, Output: that.out}
	if err != nil {
		return that.fail(res, "shutdown", err)
	}
	if len(res.Output) > 0 {
		res.Status = WantWrite
	}
	return res
}

func (that *goSession) SetEOF() {
	that.bio.setEOF()
}

func (that *goSession) State() State {
	return that.state
}

func (that *goSession) StreamSizes() StreamSizes {
	return that.sizes
}

func (that *goSession) Close() error {
	if that.state == Closed {
		return nil
	}
	that.bio.Close()
	if that.op != nil {
		that.bio.await(that.op)
		that.op = nil
	}
	that.bio.release()
	that.state = Closed
	return nil
}

func (that *goSession) fail(res Result, op string, err error) Result {
	res.Plaintext = nil
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		res.Status, res.Err = Eof, io.EOF
		return res
	}
	logger.Warningf("tls %s failed: %v", op, err)
	that.state = Failed
	f := failure(op, 0, err)
	f.Consumed, f.Output = res.Consumed, res.Output
	return f
}

// streamSizes derives record framing from the negotiated suite. TLS 1.3
// records carry a 5 byte header plus a 16 byte tag and the inner content
// type.
func streamSizes(cs tls.ConnectionState) StreamSizes {
	s := StreamSizes{Header: 5, Trailer: 17, MaxMessage: maxRecordSize}
	if cs.Version == tls.VersionTLS13 {
		return s
	}
	name := tls.CipherSuiteName(cs.CipherSuite)
	switch {
	case strings.Contains(name, "_GCM_"):
		s.Header, s.Trailer = 13, 16
	case strings.Contains(name, "CHACHA20"):
		s.Header, s.Trailer = 5, 16
	case strings.HasSuffix(name, "_CBC_SHA256"):
		s.Header, s.Trailer = 21, 48
	case strings.HasSuffix(name, "_CBC_SHA"):
		s.Header, s.Trailer = 21, 36
	}
	return s
}
