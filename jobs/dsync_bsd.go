//go:build freebsd || dragonfly

package jobs

import "golang.org/x/sys/unix"

// no O_DSYNC here, data-only sync opens fully synchronous
const oDataSync = unix.O_SYNC
