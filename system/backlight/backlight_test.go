package backlight

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingOps struct {
	updates []int
	readErr error
}

func (o *recordingOps) UpdateStatus(d *Device) error {
	o.updates = append(o.updates, d.Brightness())
	return nil
}

func (o *recordingOps) Brightness(d *Device) (int, error) {
	if o.readErr != nil {
		return 0, o.readErr
	}
	return d.Brightness(), nil
}

func TestRegistryRegisterAndAcquire(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Acquire("panel0")
	require.False(t, ok)

	d, err := r.Register("panel0", &recordingOps{}, Properties{MaxBrightness: 100})
	require.NoError(t, err)
	require.Equal(t, "panel0", d.Name())
	require.Equal(t, 1, d.refCount())

	got, ok := r.Acquire("panel0")
	require.True(t, ok)
	require.Equal(t, d, got)
	require.Equal(t, 2, d.refCount())

	r.Release(got)
	require.Equal(t, 1, d.refCount())

	r.Unregister(d)
	require.Equal(t, 0, d.refCount())

	_, ok = r.Acquire("panel0")
	require.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("panel0", &recordingOps{}, Properties{})
	require.NoError(t, err)

	_, err = r.Register("panel0", &recordingOps{}, Properties{})
	require.Error(t, err)
}

func TestRegistryRejectsInvalidRegistration(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("", &recordingOps{}, Properties{})
	require.Error(t, err)

	_, err = r.Register("panel0", nil, Properties{})
	require.Error(t, err)
}

func TestSetBrightnessClampsAndPushes(t *testing.T) {
	r := NewRegistry()
	ops := &recordingOps{}

	d, err := r.Register("panel0", ops, Properties{MaxBrightness: 100})
	require.NoError(t, err)

	require.NoError(t, d.SetBrightness(42))
	require.Equal(t, 42, d.Brightness())

	require.NoError(t, d.SetBrightness(500))
	require.Equal(t, 100, d.Brightness())

	require.NoError(t, d.SetBrightness(-3))
	require.Equal(t, 0, d.Brightness())

	require.Equal(t, []int{42, 100, 0}, ops.updates)
}

func TestUpdateStatusReissuesCurrentLevel(t *testing.T) {
	r := NewRegistry()
	ops := &recordingOps{}

	d, err := r.Register("panel0", ops, Properties{Brightness: 30, MaxBrightness: 100})
	require.NoError(t, err)

	require.NoError(t, d.UpdateStatus())
	require.NoError(t, d.UpdateStatus())

	require.Equal(t, []int{30, 30}, ops.updates)
	require.Equal(t, 30, d.Brightness())
}
