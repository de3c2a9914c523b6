package tlsengine

import (
	"crypto/rand"
	"crypto/sha1"
)

// RandBytes returns n bytes from the system CSPRNG.
func RandBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// SHA1 is used by the websocket handshake above this layer.
func SHA1(data []byte) [sha1.Size]byte {
	return sha1.Sum(data)
}
