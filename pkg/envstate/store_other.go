//go:build !windows

package envstate

import "github.com/pkg/errors"

// NewSystemStore returns the persistent environment store for the platform.
//
// The persistent machine/user environment lives in the registry, so the real
// store only exists on Windows. Tests on other platforms inject a fake Store.
func NewSystemStore() (Store, error) {
	return nil, errors.New("the persistent environment store is only supported on windows")
}
