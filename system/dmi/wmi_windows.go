package dmi

import (
	"github.com/bi-zone/wmi"
	"github.com/pkg/errors"
)

// the type name doubles as the queried class name
type Win32_ComputerSystemProduct struct {
	Vendor  string
	Version string
}

type wmiReader struct{}

var _ Reader = &wmiReader{}

// NewSystemReader returns a Reader backed by the SMBIOS data exposed
// through WMI
func NewSystemReader() (Reader, error) {
	return &wmiReader{}, nil
}

// Identity satisfies Reader
func (r *wmiReader) Identity() (Identity, error) {
	var dst []Win32_ComputerSystemProduct
	q := wmi.CreateQuery(&dst, "")
	if err := wmi.Query(q, &dst); err != nil {
		return Identity{}, errors.Wrap(err, "dmi: cannot query Win32_ComputerSystemProduct")
	}
	if len(dst) == 0 {
		return Identity{}, errors.New("dmi: no Win32_ComputerSystemProduct instance found")
	}

	return Identity{
		SysVendor:      dst[0].Vendor,
		ProductVersion: dst[0].Version,
	}, nil
}
