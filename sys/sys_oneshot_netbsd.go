//go:build netbsd

package sys

import "golang.org/x/sys/unix"

// netbsd has no EV_DISPATCH: the filter is deleted after one delivery and
// Register adds it back.
const evOneshot = unix.EV_ONESHOT
