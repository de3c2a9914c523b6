//go:build linux || darwin || netbsd || openbsd

package jobs

import "golang.org/x/sys/unix"

const oDataSync = unix.O_DSYNC
