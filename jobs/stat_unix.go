//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package jobs

import (
	"time"

	"golang.org/x/sys/unix"
)

func statTimes(st *unix.Stat_t) (atime, mtime, ctime time.Time) {
	return time.Unix(st.Atim.Unix()), time.Unix(st.Mtim.Unix()), time.Unix(st.Ctim.Unix())
}
