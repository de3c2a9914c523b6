//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package eloop

import (
	"github.com/moqsien/processes/logger"

	"github.com/moqsien/gkasync/iface"
	"github.com/moqsien/gkasync/jobs"
	"github.com/moqsien/gkasync/poll"
	"github.com/moqsien/gkasync/utils/errs"
)

// notifier carries job ids over a pipe registered edge-triggered for read,
// so every readiness event must be drained to would-block.
type notifier struct {
	*jobs.PipeNotifier
}

func newNotifier(p *poll.Poller) (*notifier, error) {
	pn, err := jobs.NewPipeNotifier()
	if err != nil {
		return nil, err
	}
	if err = p.Register(pn.Fd(), iface.InterestNone, iface.InterestRead, false); err != nil {
		pn.Close()
		return nil, err
	}
	return &notifier{PipeNotifier: pn}, nil
}

func (that *notifier) owns(ev iface.Event) bool {
	return ev.Fd == that.Fd()
}

func (that *notifier) collect(_ iface.Event, f func(int32)) {
	for {
		id, err := that.Fetch()
		if err != nil {
			if !errs.IsWouldBlock(err) {
				logger.Errorf("fetch job completion: %v", err)
			}
			return
		}
		f(id)
	}
}

func (that *notifier) close() error {
	return that.Close()
}
