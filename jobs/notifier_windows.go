//go:build windows

package jobs

import (
	"github.com/moqsien/gkasync/sys"
)

// PortNotifier posts job ids to a completion port with sys.CompletionKey;
// the id travels in the transferred-bytes field.
type PortNotifier struct {
	port sys.Handle
}

func NewPortNotifier(port sys.Handle) *PortNotifier {
	return &PortNotifier{port: port}
}

func (that *PortNotifier) Notify(jobID int32) error {
	return sys.Post(that.port, sys.CompletionKey, uint32(jobID))
}
