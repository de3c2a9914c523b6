//go:build darwin

package sys

import "golang.org/x/sys/unix"

const (
	TCP_KEEPINTVL = 0x101
	TCP_KEEPALIVE = unix.TCP_KEEPALIVE
	TCP_KEEPIDLE  = TCP_KEEPALIVE
	SOL_SOCKET    = unix.SOL_SOCKET
	IPPROTO_TCP   = unix.IPPROTO_TCP
	SO_KEEPALIVE  = unix.SO_KEEPALIVE
)
