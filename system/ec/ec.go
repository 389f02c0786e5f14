package ec

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Method selects which WMI-wrapped ACPI function to invoke
type Method uint32

// Defines the available methods. Level gets/sets the EC brightness level,
// Source gets/sets which component drives the panel backlight.
const (
	MethodLevel  Method = 1
	MethodSource Method = 2
)

// Mode selects the operation performed on a method
type Mode uint32

// Defines the operation modes. ModeGetMaxLevel is only valid with MethodLevel.
const (
	ModeGet         Mode = 0
	ModeSet         Mode = 1
	ModeGetMaxLevel Mode = 2
)

// Source identifies which component drives the panel backlight
type Source uint32

// Brightness control sources as reported by the firmware
const (
	SourceGPU Source = 1
	SourceEC  Source = 2
	SourceAUX Source = 3
)

func (s Source) String() string {
	switch s {
	case SourceGPU:
		return "GPU"
	case SourceEC:
		return "EC"
	case SourceAUX:
		return "AUX"
	default:
		return "Unknown"
	}
}

// Defines the byte layout of the 24-byte argument buffer the firmware
// method expects. The trailing 12 bytes are padding.
const (
	modeByteIndex = 0
	valByteIndex  = 4
	retByteIndex  = 8
)

const argsBufferLength = 24

// WMI is the communication interface to the firmware brightness method
type WMI interface {
	// Evaluate invokes the given method with an encoded argument buffer and
	// returns the raw output buffer
	Evaluate(id Method, args []byte) ([]byte, error)
	Close() error
}

// EncodeArgs builds the firmware argument buffer for one invocation. val is
// only meaningful with ModeSet.
func EncodeArgs(mode Mode, val uint32) []byte {
	buf := make([]byte, argsBufferLength)
	binary.LittleEndian.PutUint32(buf[modeByteIndex:], uint32(mode))
	binary.LittleEndian.PutUint32(buf[valByteIndex:], val)
	return buf
}

// DecodeRet extracts the out parameter from a firmware output buffer
func DecodeRet(buf []byte) (uint32, error) {
	if len(buf) < retByteIndex+4 {
		return 0, errors.Errorf("ec: output buffer too short: %d bytes", len(buf))
	}
	return binary.LittleEndian.Uint32(buf[retByteIndex:]), nil
}

// Control provides typed accessors over the raw firmware method
type Control struct {
	wmi WMI
}

// NewControl wraps a WMI transport
func NewControl(wmi WMI) (*Control, error) {
	if wmi == nil {
		return nil, errors.New("ec: nil WMI is invalid")
	}
	return &Control{
		wmi: wmi,
	}, nil
}

func (c *Control) invoke(id Method, mode Mode, val uint32) (uint32, error) {
	out, err := c.wmi.Evaluate(id, EncodeArgs(mode, val))
	if err != nil {
		return 0, errors.Wrap(err, "ec: firmware communication failed")
	}
	if mode == ModeSet {
		return 0, nil
	}
	return DecodeRet(out)
}

// Brightness returns the current EC brightness level
func (c *Control) Brightness() (uint32, error) {
	return c.invoke(MethodLevel, ModeGet, 0)
}

// SetBrightness sets the EC brightness level
func (c *Control) SetBrightness(level uint32) error {
	_, err := c.invoke(MethodLevel, ModeSet, level)
	return err
}

// MaxBrightness returns the upper bound of the EC brightness range
func (c *Control) MaxBrightness() (uint32, error) {
	return c.invoke(MethodLevel, ModeGetMaxLevel, 0)
}

// BrightnessSource reports which component the firmware says is driving
// the panel backlight
func (c *Control) BrightnessSource() (Source, error) {
	v, err := c.invoke(MethodSource, ModeGet, 0)
	if err != nil {
		return 0, err
	}
	return Source(v), nil
}

// Close releases the underlying transport
func (c *Control) Close() error {
	return c.wmi.Close()
}
