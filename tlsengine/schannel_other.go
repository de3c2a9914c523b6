//go:build !windows

package tlsengine

import (
	"fmt"

	"github.com/moqsien/gkasync/utils/errs"
)

const SchannelName = "schannel"

type schannelBackend struct{}

func (schannelBackend) Name() string { return SchannelName }

func (schannelBackend) Available() error {
	return fmt.Errorf("schannel needs windows: %w", errs.ErrUnavailable)
}

func (schannelBackend) NewSession() (Session, error) {
	return nil, schannelBackend{}.Available()
}

func init() {
	Register(schannelBackend{})
}
