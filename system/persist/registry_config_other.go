//go:build !windows
// +build !windows

package persist

import (
	"github.com/pkg/errors"
)

// NewRegistryConfigHelper is only implemented on Windows; use
// NewMemoryConfigHelper elsewhere
func NewRegistryConfigHelper() (ConfigRegistry, error) {
	return nil, errors.New("persist: the Registry is only available on Windows")
}
