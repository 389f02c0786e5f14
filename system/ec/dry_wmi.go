package ec

import (
	"encoding/binary"
	"log"
	"sync"

	"github.com/pkg/errors"
)

const (
	dryMaxBrightness = 100
)

type dryWmi struct {
	mu     sync.Mutex
	level  uint32
	max    uint32
	source Source
}

var _ WMI = &dryWmi{}

// NewDryWMI returns a WMI that simulates an EC-driven backlight without
// actual IOs. The simulated firmware reports EC control and starts at full
// brightness, which is also what buggy firmware leaves behind after resume.
func NewDryWMI() (WMI, error) {
	return &dryWmi{
		level:  dryMaxBrightness,
		max:    dryMaxBrightness,
		source: SourceEC,
	}, nil
}

func (d *dryWmi) Evaluate(id Method, args []byte) ([]byte, error) {
	if len(args) < argsBufferLength {
		return nil, errors.Errorf("ec: args should be %d bytes", argsBufferLength)
	}

	mode := Mode(binary.LittleEndian.Uint32(args[modeByteIndex:]))
	val := binary.LittleEndian.Uint32(args[valByteIndex:])

	d.mu.Lock()
	defer d.mu.Unlock()

	var ret uint32
	switch id {
	case MethodLevel:
		switch mode {
		case ModeGet:
			ret = d.level
		case ModeSet:
			log.Printf("[dry run] ec: set level to %d\n", val)
			d.level = val
		case ModeGetMaxLevel:
			ret = d.max
		default:
			return nil, errors.Errorf("ec: invalid mode %d", mode)
		}
	case MethodSource:
		switch mode {
		case ModeGet:
			ret = uint32(d.source)
		case ModeSet:
			log.Printf("[dry run] ec: set source to %d\n", val)
			d.source = Source(val)
		default:
			return nil, errors.Errorf("ec: invalid mode %d", mode)
		}
	default:
		return nil, errors.Errorf("ec: invalid method %d", id)
	}

	out := make([]byte, argsBufferLength)
	copy(out, args)
	binary.LittleEndian.PutUint32(out[retByteIndex:], ret)

	return out, nil
}

func (d *dryWmi) Close() error {
	return nil
}
