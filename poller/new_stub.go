//go:build !unix && !windows

package poller

import "github.com/Trinoooo/eggie_poll/errs"

// New reports that no readiness facility exists on this platform.
func New(maxEvents int) (Poller, error) {
	return nil, errs.NewNotSupportedErr()
}
