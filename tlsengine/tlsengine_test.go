package tlsengine

import (
	"crypto/sha1"
	"encoding/hex"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moqsien/gkasync/utils/errs"
)

func TestRegistry(t *testing.T) {
	assert.Contains(t, Backends(), GoTLSName)
	assert.Contains(t, Backends(), SchannelName)

	b, err := Lookup(GoTLSName)
	require.NoError(t, err)
	assert.Equal(t, GoTLSName, b.Name())

	_, err = Lookup("openssl")
	assert.ErrorIs(t, err, errs.ErrUnavailable)

	d, err := Default()
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, GoTLSName, d.Name())
	}
}

func TestSchannelUnavailableOffWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("schannel is native here")
	}
	_, err := Lookup(SchannelName)
	assert.ErrorIs(t, err, errs.ErrUnavailable)
	_, err = NewSession(SchannelName)
	assert.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestStatusNames(t *testing.T) {
	assert.Equal(t, "want-read", WantRead.String())
	assert.Equal(t, "renegotiate", ReNegotiate.String())
	assert.Equal(t, "unknown", Status(42).String())
	assert.Equal(t, "credentials-bound", CredentialsBound.String())
}

func TestRandBytes(t *testing.T) {
	a, err := RandBytes(32)
	require.NoError(t, err)
	b, err := RandBytes(32)
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestSHA1(t *testing.T) {
	sum := SHA1([]byte("abc"))
	assert.Equal(t, sha1.Size, len(sum))
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", hex.EncodeToString(sum[:]))
}
