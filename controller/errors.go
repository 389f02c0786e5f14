package controller

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotApplicable indicates the firmware reports a brightness source
	// other than the EC, so another driver should own the panel. Attachment
	// is rejected permanently.
	ErrNotApplicable = errors.New("brightness is not EC-controlled")

	// ErrProxyDeferred indicates the proxy target endpoint is not registered
	// yet and retry budget remains. The supervisor should re-invoke the
	// attach sequence later.
	ErrProxyDeferred = errors.New("proxy target not yet available")
)
