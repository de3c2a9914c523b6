package tlsengine

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moqsien/gkasync/utils/errs"
)

const maxSteps = 200

func selfSigned(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "gkasync.test"},
		DNSNames:     []string{"gkasync.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, pool
}

// peer is one side of an in-memory connection: pending holds ciphertext
// received from the other side and not yet consumed.
type peer struct {
	s       Session
	pending []byte
	done    bool
}

// deliver queues output as ciphertext received by the other side.
func deliver(out []byte, to *peer) {
	to.pending = append(to.pending, out...)
}

func newPair(t *testing.T, verify bool, roots *x509.CertPool, cert tls.Certificate, version uint16) (*peer, *peer) {
	t.Helper()
	cs, err := NewSession(GoTLSName)
	require.NoError(t, err)
	ss, err := NewSession(GoTLSName)
	require.NoError(t, err)
	require.NoError(t, cs.InitClient(&ClientConfig{
		ServerName: "gkasync.test",
		VerifyPeer: verify,
		RootCAs:    roots,
		MinVersion: version,
		MaxVersion: version,
	}))
	require.NoError(t, ss.InitServer(&ServerConfig{Certificates: []tls.Certificate{cert}, MinVersion: version}))
	assert.Equal(t, CredentialsBound, cs.State())
	t.Cleanup(func() {
		cs.Close()
		ss.Close()
	})
	return &peer{s: cs}, &peer{s: ss}
}

// handshake pumps both sides, feeding at most chunk bytes per call, until
// both complete or one fails.
func handshake(t *testing.T, client, server *peer, chunk int) (Result, Result) {
	t.Helper()
	var last [2]Result
	sides := [2]*peer{client, server}
	limit := maxSteps
	if chunk > 0 {
		limit *= 100
	}
	for step := 0; step < limit; step++ {
		for i, p := range sides {
			if p.done {
				continue
			}
			in := p.pending
			if chunk > 0 && len(in) > chunk {
				in = in[:chunk]
			}
			res := p.s.Handshake(in)
			p.pending = p.pending[res.Consumed:]
			deliver(res.Output, sides[1-i])
			last[i] = res
			switch res.Status {
			case Completed:
				p.done = true
			case Error, Eof:
				return last[0], last[1]
			}
		}
		if client.done && server.done {
			return last[0], last[1]
		}
	}
	t.Fatalf("handshake did not finish in %d steps", limit)
	return last[0], last[1]
}

// transfer writes msg on from and reads it back on to, delivering chunk
// bytes of ciphertext per Read call.
func transfer(t *testing.T, from, to *peer, msg []byte, chunk int) []byte {
	t.Helper()
	w := from.s.Write(msg)
	require.Equal(t, WantWrite, w.Status, "%v", w.Err)
	assert.Equal(t, len(msg), w.Consumed)
	deliver(w.Output, to)

	var got []byte
	for step := 0; len(got) < len(msg); step++ {
		require.Less(t, step, len(msg)*4+maxSteps*40)
		in := to.pending
		if chunk > 0 && len(in) > chunk {
			in = in[:chunk]
		}
		res := to.s.Read(in)
		to.pending = to.pending[res.Consumed:]
		deliver(res.Output, from)
		switch res.Status {
		case Completed:
			got = append(got, res.Plaintext...)
		case WantRead:
			if len(in) == 0 && len(to.pending) == 0 {
				t.Fatalf("reader starved after %d of %d bytes", len(got), len(msg))
			}
		default:
			t.Fatalf("read: %v %v", res.Status, res.Err)
		}
	}
	return got
}

func TestHandshakeAndRoundTrip(t *testing.T) {
	cert, roots := selfSigned(t)
	for _, version := range []uint16{tls.VersionTLS12, tls.VersionTLS13} {
		client, server := newPair(t, true, roots, cert, version)
		cr, sr := handshake(t, client, server, 0)
		require.Equal(t, Completed, cr.Status, "%v", cr.Err)
		require.Equal(t, Completed, sr.Status, "%v", sr.Err)
		assert.Equal(t, Established, client.s.State())

		sizes := client.s.StreamSizes()
		assert.Equal(t, 16384, sizes.MaxMessage)
		assert.NotZero(t, sizes.Header)
		assert.NotZero(t, sizes.Trailer)

		msg := []byte("hello over memory")
		assert.Equal(t, msg, transfer(t, client, server, msg, 0))
		assert.Equal(t, []byte("and back"), transfer(t, server, client, []byte("and back"), 0))
	}
}

func TestOneByteFragments(t *testing.T) {
	cert, roots := selfSigned(t)
	client, server := newPair(t, true, roots, cert, 0)

	cr, sr := handshake(t, client, server, 1)
	require.Equal(t, Completed, cr.Status, "%v", cr.Err)
	require.Equal(t, Completed, sr.Status, "%v", sr.Err)

	msg := bytes.Repeat([]byte("0123456789"), 50)
	assert.Equal(t, msg, transfer(t, client, server, msg, 1))
}

func TestLargeWrite(t *testing.T) {
	cert, roots := selfSigned(t)
	client, server := newPair(t, true, roots, cert, 0)
	handshake(t, client, server, 0)

	msg := make([]byte, 100<<10)
	_, err := rand.Read(msg)
	require.NoError(t, err)
	assert.Equal(t, msg, transfer(t, client, server, msg, 4096))
}

func TestUntrustedCertificate(t *testing.T) {
	cert, _ := selfSigned(t)
	client, server := newPair(t, true, x509.NewCertPool(), cert, 0)

	cr, _ := handshake(t, client, server, 0)
	assert.Equal(t, Error, cr.Status)
	assert.True(t, errs.IsProtocol(cr.Err))
	assert.Equal(t, Failed, client.s.State())
}

func TestSkipVerify(t *testing.T) {
	cert, _ := selfSigned(t)
	client, server := newPair(t, false, nil, cert, 0)
	cr, sr := handshake(t, client, server, 0)
	assert.Equal(t, Completed, cr.Status)
	assert.Equal(t, Completed, sr.Status)
}

func TestShutdownReachesPeerAsEOF(t *testing.T) {
	cert, roots := selfSigned(t)
	client, server := newPair(t, true, roots, cert, 0)
	handshake(t, client, server, 0)

	res := client.s.Shutdown()
	require.Equal(t, WantWrite, res.Status, "%v", res.Err)
	deliver(res.Output, server)

	var last Result
	for step := 0; step < maxSteps; step++ {
		last = server.s.Read(server.pending)
		server.pending = server.pending[last.Consumed:]
		if last.Status != WantRead {
			break
		}
	}
	assert.Equal(t, Eof, last.Status)
	assert.True(t, errs.IsEOF(last.Err))
}

func TestTransportEOFDuringHandshake(t *testing.T) {
	cert, _ := selfSigned(t)
	_, server := newPair(t, false, nil, cert, 0)

	res := server.s.Handshake(nil)
	assert.Equal(t, WantRead, res.Status)
	server.s.SetEOF()
	res = server.s.Handshake(nil)
	assert.Equal(t, Eof, res.Status)
}

func TestDataCallsBeforeHandshake(t *testing.T) {
	s, err := NewSession(GoTLSName)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, Error, s.Read(nil).Status)
	assert.Equal(t, Error, s.Write([]byte("x")).Status)
	assert.Equal(t, Error, s.Handshake(nil).Status)
	assert.Equal(t, Uninitialized, s.State())

	assert.NoError(t, s.InitClient(nil))
	assert.ErrorIs(t, s.InitClient(nil), errs.ErrInvalidState)
}

func TestServerNeedsCertificate(t *testing.T) {
	s, err := NewSession(GoTLSName)
	require.NoError(t, err)
	defer s.Close()
	assert.ErrorIs(t, s.InitServer(&ServerConfig{}), errs.ErrInvalidArgument)
}

func TestStreamSizesBySuite(t *testing.T) {
	tests := []struct {
		suite   uint16
		version uint16
		header  int
		trailer int
	}{
		{tls.TLS_AES_128_GCM_SHA256, tls.VersionTLS13, 5, 17},
		{tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, tls.VersionTLS12, 13, 16},
		{tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256, tls.VersionTLS12, 5, 16},
		{tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA, tls.VersionTLS12, 21, 36},
		{tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256, tls.VersionTLS12, 21, 48},
	}
	for _, tt := range tests {
		s := streamSizes(tls.ConnectionState{Version: tt.version, CipherSuite: tt.suite})
		assert.Equal(t, tt.header, s.Header, tls.CipherSuiteName(tt.suite))
		assert.Equal(t, tt.trailer, s.Trailer, tls.CipherSuiteName(tt.suite))
	}
}

func TestCoalescedRecordsInOneRead(t *testing.T) {
	cert, roots := selfSigned(t)
	client, server := newPair(t, true, roots, cert, 0)
	handshake(t, client, server, 0)

	for _, m := range []string{"first", "second"} {
		w := client.s.Write([]byte(m))
		require.Equal(t, WantWrite, w.Status, "%v", w.Err)
		deliver(w.Output, server)
	}
	fed := len(server.pending)
	res := server.s.Read(server.pending)
	require.Equal(t, Completed, res.Status, "%v", res.Err)
	assert.Equal(t, fed, res.Consumed)
	assert.Equal(t, "firstsecond", string(res.Plaintext))

	assert.Equal(t, WantRead, server.s.Read(nil).Status)
}

func TestRecordAndPartialRecordInOneRead(t *testing.T) {
	cert, roots := selfSigned(t)
	client, server := newPair(t, true, roots, cert, 0)
	handshake(t, client, server, 0)

	first := client.s.Write([]byte("whole"))
	in := append([]byte(nil), first.Output...)
	second := client.s.Write([]byte("split"))
	half := len(second.Output) / 2
	in = append(in, second.Output[:half]...)

	res := server.s.Read(in)
	require.Equal(t, Completed, res.Status, "%v", res.Err)
	assert.Equal(t, len(in), res.Consumed)
	assert.Equal(t, "whole", string(res.Plaintext))

	res = server.s.Read(second.Output[half:])
	require.Equal(t, Completed, res.Status, "%v", res.Err)
	assert.Equal(t, "split", string(res.Plaintext))
}

func TestApplicationDataWithFinished(t *testing.T) {
	cert, roots := selfSigned(t)
	client, server := newPair(t, true, roots, cert, tls.VersionTLS13)

	// run until the client completes, holding back its final flight
	var sr Result
	for step := 0; step < maxSteps && !client.done; step++ {
		cr := client.s.Handshake(client.pending)
		client.pending = client.pending[cr.Consumed:]
		deliver(cr.Output, server)
		require.NotEqual(t, Error, cr.Status, "%v", cr.Err)
		if cr.Status == Completed {
			client.done = true
			break
		}
		sr = server.s.Handshake(server.pending)
		server.pending = server.pending[sr.Consumed:]
		deliver(sr.Output, client)
		require.NotEqual(t, Error, sr.Status, "%v", sr.Err)
	}
	require.True(t, client.done)
	require.NotEqual(t, Completed, sr.Status)

	w := client.s.Write([]byte("after-finished"))
	require.Equal(t, WantWrite, w.Status, "%v", w.Err)
	deliver(w.Output, server)

	fed := len(server.pending)
	sr = server.s.Handshake(server.pending)
	require.Equal(t, Completed, sr.Status, "%v", sr.Err)
	assert.Equal(t, fed, sr.Consumed)
	assert.Equal(t, "after-finished", string(sr.Plaintext))

	assert.Equal(t, WantRead, server.s.Read(nil).Status)
}
