//go:build !windows
// +build !windows

package ec

import (
	"github.com/pkg/errors"
)

// NewWMI is only implemented on Windows; use NewDryWMI elsewhere
func NewWMI() (WMI, error) {
	return nil, errors.New("ec: firmware interface is only available on Windows")
}
