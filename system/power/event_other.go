//go:build !windows
// +build !windows

package power

import (
	"context"

	"github.com/pkg/errors"
)

// NewEventListener is only implemented on Windows; feed Notifier.C directly
// elsewhere
func NewEventListener(haltCtx context.Context, eventCh chan uint32) error {
	return errors.New("power: suspend/resume notifications are only available on Windows")
}
