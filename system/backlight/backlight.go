package backlight

import (
	"sync"

	"github.com/pkg/errors"
)

// Type classifies how a backlight endpoint is driven. Firmware endpoints are
// preferred over raw (GPU-driven) endpoints when both exist for a panel.
type Type int

// Endpoint types
const (
	TypeRaw Type = iota
	TypePlatform
	TypeFirmware
)

// Properties describes the user-visible state of a backlight endpoint.
// Brightness is always within [0, MaxBrightness].
type Properties struct {
	Brightness    int
	MaxBrightness int
	Type          Type
}

// Ops is implemented by the driver owning an endpoint
type Ops interface {
	// UpdateStatus should push the current properties of the device to the
	// underlying control surface
	UpdateStatus(d *Device) error
	// Brightness should read the actual level back from the control surface
	Brightness(d *Device) (int, error)
}

// Device is a logical backlight endpoint registered by a driver
type Device struct {
	name string
	ops  Ops

	mu    sync.Mutex
	props Properties
	refs  int

	// serializes UpdateStatus calls without holding the properties lock,
	// so ops implementations can read properties back
	opsMu sync.Mutex
}

// Name returns the endpoint name the device was registered under
func (d *Device) Name() string {
	return d.name
}

// Properties returns a snapshot of the device properties
func (d *Device) Properties() Properties {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.props
}

// Brightness returns the current (cached) brightness level
func (d *Device) Brightness() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.props.Brightness
}

// MaxBrightness returns the upper bound of the device's brightness range
func (d *Device) MaxBrightness() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.props.MaxBrightness
}

// SetBrightness clamps level into the device's range, records it, and pushes
// it through the owning driver's UpdateStatus
func (d *Device) SetBrightness(level int) error {
	d.mu.Lock()
	if level < 0 {
		level = 0
	}
	if level > d.props.MaxBrightness {
		level = d.props.MaxBrightness
	}
	d.props.Brightness = level
	d.mu.Unlock()

	return d.UpdateStatus()
}

// UpdateStatus re-issues the current properties to the owning driver without
// changing them. Used to resynchronize hardware that lost its state.
func (d *Device) UpdateStatus() error {
	d.opsMu.Lock()
	defer d.opsMu.Unlock()
	return d.ops.UpdateStatus(d)
}

// ReadBrightness asks the owning driver for the actual hardware level
func (d *Device) ReadBrightness() (int, error) {
	return d.ops.Brightness(d)
}

// Registry tracks the backlight endpoints registered in this process
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewRegistry returns an empty endpoint registry
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
	}
}

// Register creates an endpoint under the given name. The returned device is
// live immediately and holds one reference owned by the registering driver.
func (r *Registry) Register(name string, ops Ops, props Properties) (*Device, error) {
	if name == "" {
		return nil, errors.New("backlight: empty device name")
	}
	if ops == nil {
		return nil, errors.New("backlight: nil ops")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[name]; ok {
		return nil, errors.Errorf("backlight: device %q already registered", name)
	}

	d := &Device{
		name:  name,
		ops:   ops,
		props: props,
		refs:  1,
	}
	r.devices[name] = d

	return d, nil
}

// Acquire resolves a name to a live endpoint and takes a reference on it.
// The caller must hand the reference back via Release exactly once.
func (r *Registry) Acquire(name string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[name]
	if !ok {
		return nil, false
	}

	d.mu.Lock()
	d.refs++
	d.mu.Unlock()

	return d, true
}

// Release drops a reference previously taken with Acquire or Register
func (r *Registry) Release(d *Device) {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.refs > 0 {
		d.refs--
	}
	d.mu.Unlock()
}

// Unregister removes the endpoint from the registry and drops the
// registering driver's reference. Holders of other references may still
// issue calls against the device until they release it.
func (r *Registry) Unregister(d *Device) {
	if d == nil {
		return
	}

	r.mu.Lock()
	if cur, ok := r.devices[d.name]; ok && cur == d {
		delete(r.devices, d.name)
	}
	r.mu.Unlock()

	r.Release(d)
}

// refCount is test support
func (d *Device) refCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refs
}
