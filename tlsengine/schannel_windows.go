//go:build windows

package tlsengine

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/moqsien/processes/logger"

	"github.com/moqsien/gkasync/utils/errs"
)

const SchannelName = "schannel"

type schannelBackend struct{}

func (schannelBackend) Name() string { return SchannelName }

func (schannelBackend) Available() error { return sspiAvailable() }

func (schannelBackend) NewSession() (Session, error) {
	if err := sspiAvailable(); err != nil {
		return nil, err
	}
	return &schannelSession{}, nil
}

func init() {
	Register(schannelBackend{})
}

// schannelSession keeps the credential handle and the security context
// apart: a server may need several AcceptSecurityContext rounds before the
// context exists.
type schannelSession struct {
	server bool
	target *uint16
	cred   secHandle
	ctx    secHandle
	attrs  uint32
	state  State
	sizes  secPkgStreamSizes
	out    []byte
}

func (that *schannelSession) InitClient(cfg *ClientConfig) error {
	if that.state != Uninitialized {
		return errs.ErrInvalidState
	}
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	if cfg.ServerName != "" {
		target, err := windows.UTF16PtrFromString(cfg.ServerName)
		if err != nil {
			return err
		}
		that.target = target
	}
	params := tlsParameters{grbitDisabledProtocols: spProtTLS10Client | spProtTLS11Client}
	auth := schCredentials{
		dwVersion:      schCredentialsVersion,
		dwFlags:        schCredIgnoreNoRevoke,
		cTlsParameters: 1,
		pTlsParameters: &params,
	}
	if !cfg.VerifyPeer {
		auth.dwFlags |= schCredManualValidate
	}
	if ret := acquireCredentials(secpkgCredOutbound, &auth, &that.cred); ret != secEOK {
		return &errs.ProtocolError{Op: "AcquireCredentialsHandle", Code: ret, Msg: "acquire client credentials"}
	}
	that.state = CredentialsBound
	return nil
}

func (that *schannelSession) InitServer(_ *ServerConfig) error {
	if that.state != Uninitialized {
		return errs.ErrInvalidState
	}
	cert, store, err := serverCertificate()
	if err != nil {
		return fmt.Errorf("find server certificate: %w", err)
	}
	defer windows.CertCloseStore(store, 0)
	defer windows.CertFreeCertificateContext(cert)

	params := tlsParameters{grbitDisabledProtocols: spProtTLS10Server | spProtTLS11Server}
	auth := schCredentials{
		dwVersion:      schCredentialsVersion,
		cCreds:         1,
		paCred:         &cert,
		dwFlags:        schUseStrongCrypto,
		cTlsParameters: 1,
		pTlsParameters: &params,
	}
	if ret := acquireCredentials(secpkgCredInbound, &auth, &that.cred); ret != secEOK {
		return &errs.ProtocolError{Op: "AcquireCredentialsHandle", Code: ret, Msg: "acquire server credentials"}
	}
	that.server = true
	that.state = CredentialsBound
	return nil
}

// step runs one InitializeSecurityContext or AcceptSecurityContext round
// and returns the raw status, the bytes of in it consumed and its token.
func (that *schannelSession) step(in []byte) (uint32, int) {
	input := [2]secBuffer{
		{bufferType: secbufferToken, cbBuffer: uint32(len(in))},
		{bufferType: secbufferEmpty},
	}
	if len(in) > 0 {
		input[0].pvBuffer = unsafe.Pointer(&in[0])
	}
	inDesc := &secBufferDesc{ulVersion: secbufferVersion, cBuffers: 2, pBuffers: &input[0]}
	output := [1]secBuffer{{bufferType: secbufferToken}}
	outDesc := &secBufferDesc{ulVersion: secbufferVersion, cBuffers: 1, pBuffers: &output[0]}

	var ctx *secHandle
	if that.ctx.valid() {
		ctx = &that.ctx
	}
	var ret uint32
	if that.server {
		ret = acceptContext(&that.cred, ctx, inDesc, outDesc, &that.ctx, &that.attrs)
	} else {
		if ctx == nil {
			inDesc = nil
		}
		ret = initializeContext(&that.cred, ctx, that.target, inDesc, outDesc, &that.ctx, &that.attrs)
	}
	runtime.KeepAlive(in)

	that.out = that.out[:0]
	if output[0].pvBuffer != nil {
		if output[0].cbBuffer > 0 {
			token := unsafe.Slice((*byte)(output[0].pvBuffer), output[0].cbBuffer)
			that.out = append(that.out, token...)
		}
		freeContextBuffer(output[0].pvBuffer)
	}

	consumed := len(in)
	if input[1].bufferType == secbufferExtra {
		consumed -= int(input[1].cbBuffer)
	}
	return ret, consumed
}

func (that *schannelSession) Handshake(in []byte) Result {
	switch that.state {
	case Established:
		return Result{Status: Completed}
	case CredentialsBound, ContextEstablished:
	default:
		return Result{Status: Error, Err: errs.ErrInvalidState}
	}
	ret, consumed := that.step(in)
	res := Result{Consumed: consumed, Output: that.out}
	switch ret {
	case secEOK:
		if q := queryStreamSizes(&that.ctx, &that.sizes); q != secEOK {
			that.state = Failed
			return failure("QueryContextAttributes", q, fmt.Errorf("query stream sizes"))
		}
		that.state = Established
		res.Status = Completed
	case secIContinueNeeded:
		res.Status = WantWrite
	case secEIncompleteMessage:
		res.Status, res.Consumed = WantRead, 0
	case secIContextExpired:
		res.Status = Eof
	default:
		that.state = Failed
		logger.Warningf("schannel handshake failed: 0x%08x", ret)
		return failure("handshake", ret, fmt.Errorf("security context rejected"))
	}
	if that.state == CredentialsBound && that.ctx.valid() {
		that.state = ContextEstablished
	}
	return res
}

// Read decrypts in place; Plaintext aliases in.
func (that *schannelSession) Read(in []byte) Result {
	if that.state != Established {
		return Result{Status: Error, Err: errs.ErrInvalidState}
	}
	if len(in) == 0 {
		return Result{Status: WantRead}
	}
	var buffers [4]secBuffer
	buffers[0] = secBuffer{bufferType: secbufferData, cbBuffer: uint32(len(in)), pvBuffer: unsafe.Pointer(&in[0])}
	desc := &secBufferDesc{ulVersion: secbufferVersion, cBuffers: 4, pBuffers: &buffers[0]}
	ret := decryptMessage(&that.ctx, desc)
	runtime.KeepAlive(in)

	base := uintptr(unsafe.Pointer(&in[0]))
	res := Result{Consumed: len(in)}
	for _, b := range buffers {
		switch b.bufferType {
		case secbufferData:
			if b.pvBuffer == nil {
				continue
			}
			off := int(uintptr(b.pvBuffer) - base)
			res.Plaintext = in[off : off+int(b.cbBuffer)]
		case secbufferExtra:
			res.Consumed -= int(b.cbBuffer)
		}
	}
	switch ret {
	case secEOK:
		res.Status = Completed
	case secEIncompleteMessage:
		return Result{Status: WantRead}
	case secIContextExpired:
		res.Status, res.Plaintext = Eof, nil
	case secIRenegotiate:
		res.Status = ReNegotiate
	default:
		return failure("DecryptMessage", ret, fmt.Errorf("decrypt record"))
	}
	return res
}

// Write frames p into records of at most MaxMessage plaintext bytes.
func (that *schannelSession) Write(p []byte) Result {
	if that.state != Established {
		return Result{Status: Error, Err: errs.ErrInvalidState}
	}
	header, trailer := int(that.sizes.cbHeader), int(that.sizes.cbTrailer)
	limit := int(that.sizes.cbMaximumMessage)
	if limit <= 0 {
		limit = maxRecordSize
	}
	that.out = that.out[:0]
	for off := 0; off < len(p); {
		chunk := p[off:]
		if len(chunk) > limit {
			chunk = chunk[:limit]
		}
		start := len(that.out)
		need := start + header + len(chunk) + trailer
		if cap(that.out) < need {
			grown := make([]byte, start, need*2)
			copy(grown, that.out)
			that.out = grown
		}
		that.out = that.out[:need]
		rec := that.out[start:]
		copy(rec[header:], chunk)

		buffers := [4]secBuffer{
			{bufferType: secbufferStreamHeader, cbBuffer: uint32(header), pvBuffer: unsafe.Pointer(&rec[0])},
			{bufferType: secbufferData, cbBuffer: uint32(len(chunk)), pvBuffer: unsafe.Pointer(&rec[header])},
			{bufferType: secbufferStreamTrailer, cbBuffer: uint32(trailer)},
			{bufferType: secbufferEmpty},
		}
		if trailer > 0 {
			buffers[2].pvBuffer = unsafe.Pointer(&rec[header+len(chunk)])
		}
		desc := &secBufferDesc{ulVersion: secbufferVersion, cBuffers: 4, pBuffers: &buffers[0]}
		ret := encryptMessage(&that.ctx, desc)
		runtime.KeepAlive(rec)
		if ret != secEOK {
			res := failure("EncryptMessage", ret, fmt.Errorf("encrypt record"))
			res.Consumed = off
			return res
		}
		that.out = that.out[:start+int(buffers[0].cbBuffer+buffers[1].cbBuffer+buffers[2].cbBuffer)]
		off += len(chunk)
	}
	return Result{Status: WantWrite, Consumed: len(p), Output: that.out}
}

// Shutdown applies SCHANNEL_SHUTDOWN and produces the close_notify token.
func (that *schannelSession) Shutdown() Result {
	if that.state != Established {
		return Result{Status: Error, Err: errs.ErrInvalidState}
	}
	token := uint32(schannelShutdown)
	buf := secBuffer{bufferType: secbufferToken, cbBuffer: 4, pvBuffer: unsafe.Pointer(&token)}
	desc := &secBufferDesc{ulVersion: secbufferVersion, cBuffers: 1, pBuffers: &buf}
	if ret := applyControlToken(&that.ctx, desc); ret != secEOK {
		return failure("ApplyControlToken", ret, fmt.Errorf("shutdown"))
	}
	runtime.KeepAlive(&token)
	ret, _ := that.step(nil)
	if ret != secEOK && ret != secIContextExpired && ret != secIContinueNeeded {
		return failure("shutdown", ret, fmt.Errorf("close_notify"))
	}
	res := Result{Status: Completed, Output: that.out}
	if len(res.Output) > 0 {
		res.Status = WantWrite
	}
	return res
}

// SetEOF is a no-op: schannel reports a closed peer through DecryptMessage.
func (that *schannelSession) SetEOF() {}

func (that *schannelSession) State() State {
	return that.state
}

func (that *schannelSession) StreamSizes() StreamSizes {
	return StreamSizes{
		Header:     int(that.sizes.cbHeader),
		Trailer:    int(that.sizes.cbTrailer),
		MaxMessage: int(that.sizes.cbMaximumMessage),
	}
}

func (that *schannelSession) Close() error {
	if that.state == Closed {
		return nil
	}
	if that.ctx.valid() {
		deleteContext(&that.ctx)
	}
	if that.state != Uninitialized {
		freeCredentials(&that.cred)
	}
	that.state = Closed
	return nil
}
