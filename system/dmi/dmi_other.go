//go:build !windows
// +build !windows

package dmi

import (
	"github.com/pkg/errors"
)

// NewSystemReader is only implemented on Windows; use a StaticReader
// elsewhere
func NewSystemReader() (Reader, error) {
	return nil, errors.New("dmi: system identity reader is only available on Windows")
}
