//go:build windows

package eloop

import (
	"github.com/moqsien/gkasync/iface"
	"github.com/moqsien/gkasync/jobs"
	"github.com/moqsien/gkasync/poll"
	"github.com/moqsien/gkasync/sys"
)

// notifier posts job ids to the reactor's own completion port; each packet
// carries one id.
type notifier struct {
	*jobs.PortNotifier
}

func newNotifier(p *poll.Poller) (*notifier, error) {
	return &notifier{PortNotifier: jobs.NewPortNotifier(p.Port())}, nil
}

func (that *notifier) owns(ev iface.Event) bool {
	return ev.Overlapped == 0 && ev.Handle == sys.CompletionKey
}

func (that *notifier) collect(ev iface.Event, f func(int32)) {
	f(int32(ev.Bytes))
}

func (that *notifier) close() error {
	return nil
}
