package dmi

// Identity is the firmware-reported platform identity used to look up
// per-machine quirks. It is read once at startup and never changes.
type Identity struct {
	SysVendor      string
	ProductVersion string
}

// Reader supplies the platform identity of the running machine
type Reader interface {
	Identity() (Identity, error)
}

// StaticReader returns a fixed identity. Used for dry runs and tests.
type StaticReader struct {
	ID Identity
}

var _ Reader = &StaticReader{}

// Identity satisfies Reader
func (s *StaticReader) Identity() (Identity, error) {
	return s.ID, nil
}
