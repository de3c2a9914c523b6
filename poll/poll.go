/*
Poller provides an encapsulation of methods provided by package sys which is a generalization of syscalls from different platforms.
*/
package poll

import (
	"github.com/moqsien/gkasync/iface"
)

// NewReactor returns the reactor of the current platform. Callers check
// Model() and assert iface.IReadinessReactor or iface.ICompletionReactor.
func NewReactor(opts *iface.Options) (iface.IReactor, error) {
	p, err := New(opts)
	if err != nil {
		return nil, err
	}
	return p, nil
}
