//go:build windows

package tlsengine

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/moqsien/gkasync/utils/errs"
)

const (
	secbufferVersion = 0

	secbufferEmpty         = 0
	secbufferData          = 1
	secbufferToken         = 2
	secbufferExtra         = 5
	secbufferStreamTrailer = 6
	secbufferStreamHeader  = 7

	secEOK                = 0
	secIContinueNeeded    = 0x00090312
	secIContextExpired    = 0x00090317
	secIRenegotiate       = 0x00090321
	secEIncompleteMessage = 0x80090318
	secpkgAttrStreamSizes = 4
	secpkgCredInbound     = 1
	secpkgCredOutbound    = 2
	schannelShutdown      = 1
	schCredentialsVersion = 5
	schCredManualValidate = 0x00000008
	schCredIgnoreNoRevoke = 0x00000800
	schUseStrongCrypto    = 0x00400000
	spProtTLS10Server     = 0x00000040
	spProtTLS10Client     = 0x00000080
	spProtTLS11Server     = 0x00000100
	spProtTLS11Client     = 0x00000200
	certFindHasPrivateKey = 0x00150000
	reqAllocateMemory     = 0x00000100
	iscReqConfidentiality = 0x00000010
	iscReqIntegrity       = 0x00010000
	ascReqConfidentiality = 0x00000010
	ascReqIntegrity       = 0x00020000
	securityNativeDataRep = 0x10
	unispName             = "Microsoft Unified Security Protocol Provider"
	x509AsnEncoding       = 0x00000001
	pkcs7AsnEncoding      = 0x00010000
)

var (
	modsecur32 = windows.NewLazySystemDLL("secur32.dll")

	procAcquireCredentialsHandleW  = modsecur32.NewProc("AcquireCredentialsHandleW")
	procInitializeSecurityContextW = modsecur32.NewProc("InitializeSecurityContextW")
	procAcceptSecurityContext      = modsecur32.NewProc("AcceptSecurityContext")
	procDecryptMessage             = modsecur32.NewProc("DecryptMessage")
	procEncryptMessage             = modsecur32.NewProc("EncryptMessage")
	procQueryContextAttributesW    = modsecur32.NewProc("QueryContextAttributesW")
	procApplyControlToken          = modsecur32.NewProc("ApplyControlToken")
	procDeleteSecurityContext      = modsecur32.NewProc("DeleteSecurityContext")
	procFreeCredentialsHandle      = modsecur32.NewProc("FreeCredentialsHandle")
	procFreeContextBuffer          = modsecur32.NewProc("FreeContextBuffer")

	sspiProcs = []*windows.LazyProc{
		procAcquireCredentialsHandleW,
		procInitializeSecurityContextW,
		procAcceptSecurityContext,
		procDecryptMessage,
		procEncryptMessage,
		procQueryContextAttributesW,
		procApplyControlToken,
		procDeleteSecurityContext,
		procFreeCredentialsHandle,
		procFreeContextBuffer,
	}
)

// secBuffer points either into Go memory passed to the call or at a token
// the package allocated; keeping pvBuffer a real pointer keeps the former
// alive while the descriptor is in use.
type secBuffer struct {
	cbBuffer   uint32
	bufferType uint32
	pvBuffer   unsafe.Pointer
}

type secBufferDesc struct {
	ulVersion uint32
	cBuffers  uint32
	pBuffers  *secBuffer
}

type secHandle struct {
	dwLower uintptr
	dwUpper uintptr
}

func (that *secHandle) valid() bool {
	return that.dwLower != 0 || that.dwUpper != 0
}

type tlsParameters struct {
	cAlpnIds               uint32
	rgstrAlpnIds           uintptr
	grbitDisabledProtocols uint32
	cDisabledCrypto        uint32
	pDisabledCrypto        uintptr
	dwFlags                uint32
}

type schCredentials struct {
	dwVersion         uint32
	dwCredFormat      uint32
	cCreds            uint32
	paCred            **windows.CertContext
	hRootStore        windows.Handle
	cMappers          uint32
	aphMappers        uintptr
	dwSessionLifespan uint32
	dwFlags           uint32
	cTlsParameters    uint32
	pTlsParameters    *tlsParameters
}

type secPkgStreamSizes struct {
	cbHeader         uint32
	cbTrailer        uint32
	cbMaximumMessage uint32
	cBuffers         uint32
	cbBlockSize      uint32
}

func sspiAvailable() error {
	if err := modsecur32.Load(); err != nil {
		return fmt.Errorf("load secur32.dll: %v: %w", err, errs.ErrUnavailable)
	}
	for _, p := range sspiProcs {
		if err := p.Find(); err != nil {
			return fmt.Errorf("%s: %v: %w", p.Name, err, errs.ErrUnavailable)
		}
	}
	return nil
}

func status(r1 uintptr) uint32 {
	return uint32(r1)
}

func acquireCredentials(use uint32, auth *schCredentials, cred *secHandle) uint32 {
	pkg, _ := windows.UTF16PtrFromString(unispName)
	r1, _, _ := procAcquireCredentialsHandleW.Call(
		0,
		uintptr(unsafe.Pointer(pkg)),
		uintptr(use),
		0,
		uintptr(unsafe.Pointer(auth)),
		0,
		0,
		uintptr(unsafe.Pointer(cred)),
		0,
	)
	return status(r1)
}

func initializeContext(cred, ctx *secHandle, target *uint16, input, output *secBufferDesc, newCtx *secHandle, attrs *uint32) uint32 {
	r1, _, _ := procInitializeSecurityContextW.Call(
		uintptr(unsafe.Pointer(cred)),
		uintptr(unsafe.Pointer(ctx)),
		uintptr(unsafe.Pointer(target)),
		uintptr(iscReqConfidentiality|iscReqIntegrity|reqAllocateMemory),
		0,
		0,
		uintptr(unsafe.Pointer(input)),
		0,
		uintptr(unsafe.Pointer(newCtx)),
		uintptr(unsafe.Pointer(output)),
		uintptr(unsafe.Pointer(attrs)),
		0,
	)
	return status(r1)
}

func acceptContext(cred, ctx *secHandle, input, output *secBufferDesc, newCtx *secHandle, attrs *uint32) uint32 {
	r1, _, _ := procAcceptSecurityContext.Call(
		uintptr(unsafe.Pointer(cred)),
		uintptr(unsafe.Pointer(ctx)),
		uintptr(unsafe.Pointer(input)),
		uintptr(ascReqConfidentiality|ascReqIntegrity|reqAllocateMemory),
		securityNativeDataRep,
		uintptr(unsafe.Pointer(newCtx)),
		uintptr(unsafe.Pointer(output)),
		uintptr(unsafe.Pointer(attrs)),
		0,
	)
	return status(r1)
}

func decryptMessage(ctx *secHandle, msg *secBufferDesc) uint32 {
	r1, _, _ := procDecryptMessage.Call(uintptr(unsafe.Pointer(ctx)), uintptr(unsafe.Pointer(msg)), 0, 0)
	return status(r1)
}

func encryptMessage(ctx *secHandle, msg *secBufferDesc) uint32 {
	r1, _, _ := procEncryptMessage.Call(uintptr(unsafe.Pointer(ctx)), 0, uintptr(unsafe.Pointer(msg)), 0)
	return status(r1)
}

func queryStreamSizes(ctx *secHandle, sizes *secPkgStreamSizes) uint32 {
	r1, _, _ := procQueryContextAttributesW.Call(uintptr(unsafe.Pointer(ctx)), secpkgAttrStreamSizes, uintptr(unsafe.Pointer(sizes)))
	return status(r1)
}

func applyControlToken(ctx *secHandle, input *secBufferDesc) uint32 {
	r1, _, _ := procApplyControlToken.Call(uintptr(unsafe.Pointer(ctx)), uintptr(unsafe.Pointer(input)))
	return status(r1)
}

func deleteContext(ctx *secHandle) {
	procDeleteSecurityContext.Call(uintptr(unsafe.Pointer(ctx)))
}

func freeCredentials(cred *secHandle) {
	procFreeCredentialsHandle.Call(uintptr(unsafe.Pointer(cred)))
}

func freeContextBuffer(p unsafe.Pointer) {
	if p != nil {
		procFreeContextBuffer.Call(uintptr(p))
	}
}

// serverCertificate returns the first certificate with a private key from
// the current user's personal store.
func serverCertificate() (*windows.CertContext, windows.Handle, error) {
	name, _ := windows.UTF16PtrFromString("MY")
	store, err := windows.CertOpenSystemStore(0, name)
	if err != nil {
		return nil, 0, err
	}
	cert, err := windows.CertFindCertificateInStore(store, x509AsnEncoding|pkcs7AsnEncoding, 0, certFindHasPrivateKey, nil, nil)
	if err != nil {
		windows.CertCloseStore(store, 0)
		return nil, 0, err
	}
	return cert, store, nil
}
