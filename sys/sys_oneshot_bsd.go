//go:build darwin || freebsd || openbsd || dragonfly

package sys

import "golang.org/x/sys/unix"

// evOneshot disables the filter after one delivery; Register enables it again.
const evOneshot = unix.EV_DISPATCH
