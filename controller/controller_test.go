package controller

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/lumastack/ecbacklight/system/backlight"
	"github.com/lumastack/ecbacklight/system/dmi"
	"github.com/lumastack/ecbacklight/system/ec"
	"github.com/lumastack/ecbacklight/system/persist"
	"github.com/lumastack/ecbacklight/system/power"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	suture "github.com/thejerf/suture/v4"
)

var legionIdentity = dmi.Identity{
	SysVendor:      "LENOVO",
	ProductVersion: "Legion S7 15ACH6",
}

// fakeWMI simulates the firmware brightness method with error injection
type fakeWMI struct {
	mu        sync.Mutex
	level     uint32
	max       uint32
	source    ec.Source
	setLevels []uint32
	evalErr   error
}

func (f *fakeWMI) Evaluate(id ec.Method, args []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.evalErr != nil {
		return nil, f.evalErr
	}

	mode := ec.Mode(binary.LittleEndian.Uint32(args[0:]))
	val := binary.LittleEndian.Uint32(args[4:])

	var ret uint32
	switch id {
	case ec.MethodLevel:
		switch mode {
		case ec.ModeGet:
			ret = f.level
		case ec.ModeSet:
			f.level = val
			f.setLevels = append(f.setLevels, val)
		case ec.ModeGetMaxLevel:
			ret = f.max
		}
	case ec.MethodSource:
		ret = uint32(f.source)
	}

	out := make([]byte, 24)
	binary.LittleEndian.PutUint32(out[8:], ret)
	return out, nil
}

func (f *fakeWMI) Close() error {
	return nil
}

func (f *fakeWMI) sets() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.setLevels...)
}

func (f *fakeWMI) resetTo(level uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.level = level
}

// targetOps backs a fake proxy target endpoint
type targetOps struct {
	mu      sync.Mutex
	updates []int
	fail    bool
}

func (o *targetOps) UpdateStatus(d *backlight.Device) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return errors.New("target update failed")
	}
	o.updates = append(o.updates, d.Brightness())
	return nil
}

func (o *targetOps) Brightness(d *backlight.Device) (int, error) {
	return d.Brightness(), nil
}

func (o *targetOps) setFail(fail bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fail = fail
}

func (o *targetOps) seen() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.updates...)
}

func newTestController(t *testing.T, conf RunConfig, w *fakeWMI, id dmi.Identity) (*Controller, *Dependencies) {
	t.Helper()

	control, err := ec.NewControl(w)
	require.NoError(t, err)

	config, err := persist.NewMemoryConfigHelper()
	require.NoError(t, err)

	dep := &Dependencies{
		EC:             control,
		Backlights:     backlight.NewRegistry(),
		DMI:            &dmi.StaticReader{ID: id},
		Power:          power.NewNotifier(),
		ConfigRegistry: config,
	}

	c, err := New(conf, dep)
	require.NoError(t, err)

	return c, dep
}

func TestAttachNotApplicable(t *testing.T) {
	w := &fakeWMI{level: 50, max: 100, source: ec.SourceGPU}
	c, _ := newTestController(t, RunConfig{}, w, dmi.Identity{})

	err := c.attach()
	require.Error(t, err)
	require.Equal(t, ErrNotApplicable, errors.Cause(err))
}

func TestServeNotApplicableDoesNotRestart(t *testing.T) {
	w := &fakeWMI{level: 50, max: 100, source: ec.SourceAUX}
	c, _ := newTestController(t, RunConfig{}, w, dmi.Identity{})

	err := c.Serve(context.Background())
	require.Equal(t, suture.ErrDoNotRestart, err)
}

func TestAttachRegistersEndpoint(t *testing.T) {
	w := &fakeWMI{level: 50, max: 100, source: ec.SourceEC}
	c, dep := newTestController(t, RunConfig{}, w, dmi.Identity{})

	require.NoError(t, c.attach())
	defer c.teardown()

	bl, ok := dep.Backlights.Acquire(BacklightName)
	require.True(t, ok)
	defer dep.Backlights.Release(bl)

	require.Equal(t, 50, bl.Brightness())
	require.Equal(t, 100, bl.MaxBrightness())
	require.Equal(t, backlight.TypeFirmware, bl.Properties().Type)

	require.NoError(t, bl.SetBrightness(30))
	require.Equal(t, []uint32{30}, w.sets())

	level, err := bl.ReadBrightness()
	require.NoError(t, err)
	require.Equal(t, 30, level)
}

func TestAttachPropagatesFirmwareErrors(t *testing.T) {
	w := &fakeWMI{evalErr: errors.New("acpi failure")}
	c, _ := newTestController(t, RunConfig{}, w, dmi.Identity{})

	err := c.attach()
	require.Error(t, err)
	require.NotEqual(t, ErrNotApplicable, errors.Cause(err))
	require.NotEqual(t, ErrProxyDeferred, errors.Cause(err))
}

func TestRetryBoundIsExact(t *testing.T) {
	const maxAttempts = 5

	w := &fakeWMI{level: 50, max: 100, source: ec.SourceEC}
	c, dep := newTestController(t, RunConfig{
		ProxyTarget:        "amdgpu_bl0",
		MaxReprobeAttempts: maxAttempts,
	}, w, dmi.Identity{})

	// the target never shows up: exactly maxAttempts deferrals
	for i := 0; i < maxAttempts; i++ {
		err := c.attach()
		require.Error(t, err)
		require.Equal(t, ErrProxyDeferred, errors.Cause(err))
	}

	// the next attempt degrades to no proxy instead of deferring again
	require.NoError(t, c.attach())
	defer c.teardown()

	bl, ok := dep.Backlights.Acquire(BacklightName)
	require.True(t, ok)
	defer dep.Backlights.Release(bl)

	// brightness control works, nothing is relayed
	require.NoError(t, bl.SetBrightness(30))
	require.Equal(t, []uint32{30}, w.sets())
}

func TestRelayScalesAcrossRanges(t *testing.T) {
	w := &fakeWMI{level: 50, max: 100, source: ec.SourceEC}
	c, dep := newTestController(t, RunConfig{
		ProxyTarget: "amdgpu_bl0",
	}, w, dmi.Identity{})

	ops := &targetOps{}
	target, err := dep.Backlights.Register("amdgpu_bl0", ops, backlight.Properties{
		Brightness:    128,
		MaxBrightness: 255,
	})
	require.NoError(t, err)

	require.NoError(t, c.attach())
	defer c.teardown()

	// the target's level was imported into the source range exactly once,
	// without being relayed back: 128/255 -> 50/100
	require.Equal(t, []uint32{50}, w.sets())
	require.Empty(t, ops.seen())

	bl, ok := dep.Backlights.Acquire(BacklightName)
	require.True(t, ok)
	defer dep.Backlights.Release(bl)

	// a set is relayed scaled into the target's range: 30/100 -> 77/255
	require.NoError(t, bl.SetBrightness(30))
	require.Equal(t, []int{77}, ops.seen())
	require.Equal(t, []uint32{50, 30}, w.sets())
	require.Equal(t, 77, target.Brightness())
}

func TestRelayFailureDoesNotAbortPrimarySet(t *testing.T) {
	w := &fakeWMI{level: 50, max: 100, source: ec.SourceEC}
	c, dep := newTestController(t, RunConfig{
		ProxyTarget: "amdgpu_bl0",
	}, w, dmi.Identity{})

	ops := &targetOps{}
	_, err := dep.Backlights.Register("amdgpu_bl0", ops, backlight.Properties{
		Brightness:    128,
		MaxBrightness: 255,
	})
	require.NoError(t, err)

	require.NoError(t, c.attach())
	defer c.teardown()

	bl, ok := dep.Backlights.Acquire(BacklightName)
	require.True(t, ok)
	defer dep.Backlights.Release(bl)

	ops.setFail(true)

	require.NoError(t, bl.SetBrightness(60))
	require.Equal(t, []uint32{50, 60}, w.sets())
	require.Empty(t, ops.seen())
}

func TestResumeResynchronizesLevel(t *testing.T) {
	w := &fakeWMI{level: 50, max: 100, source: ec.SourceEC}
	c, dep := newTestController(t, RunConfig{
		RestoreLevelOnResume: true,
	}, w, dmi.Identity{})

	require.NoError(t, c.attach())
	defer c.teardown()

	// firmware reset the EC to full brightness during suspend while the
	// endpoint still believes 50 is current
	w.resetTo(100)

	dep.Power.Dispatch(power.PBT_APMRESUMEAUTOMATIC)
	require.Equal(t, []uint32{50}, w.sets())

	// every resume re-applies, and suspend events are ignored
	dep.Power.Dispatch(power.PBT_APMSUSPEND)
	dep.Power.Dispatch(power.PBT_APMRESUMEAUTOMATIC)
	dep.Power.Dispatch(power.PBT_APMRESUMEAUTOMATIC)
	require.Equal(t, []uint32{50, 50, 50}, w.sets())
}

func TestResumeUnarmedWithoutQuirk(t *testing.T) {
	w := &fakeWMI{level: 50, max: 100, source: ec.SourceEC}
	c, dep := newTestController(t, RunConfig{}, w, dmi.Identity{})

	require.NoError(t, c.attach())
	defer c.teardown()

	dep.Power.Dispatch(power.PBT_APMRESUMEAUTOMATIC)
	require.Empty(t, w.sets())
}

func TestTeardownDisarmsAndUnregisters(t *testing.T) {
	w := &fakeWMI{level: 50, max: 100, source: ec.SourceEC}
	c, dep := newTestController(t, RunConfig{
		RestoreLevelOnResume: true,
	}, w, dmi.Identity{})

	require.NoError(t, c.attach())
	c.teardown()

	_, ok := dep.Backlights.Acquire(BacklightName)
	require.False(t, ok)

	dep.Power.Dispatch(power.PBT_APMRESUMEAUTOMATIC)
	require.Empty(t, w.sets())

	// a second teardown is harmless
	c.teardown()
}

func TestQuirkedMachineEndToEnd(t *testing.T) {
	const maxAttempts = 8

	w := &fakeWMI{level: 50, max: 100, source: ec.SourceEC}
	c, dep := newTestController(t, RunConfig{
		MaxReprobeAttempts: maxAttempts,
	}, w, legionIdentity)

	// the quirk table names amdgpu_bl0, which never registers: the attach
	// sequence defers exactly maxAttempts times
	for i := 0; i < maxAttempts; i++ {
		err := c.attach()
		require.Equal(t, ErrProxyDeferred, errors.Cause(err))
	}

	// then proceeds with the proxy disabled and resync still armed
	require.NoError(t, c.attach())
	defer c.teardown()

	bl, ok := dep.Backlights.Acquire(BacklightName)
	require.True(t, ok)
	defer dep.Backlights.Release(bl)

	require.NoError(t, bl.SetBrightness(30))
	require.Equal(t, []uint32{30}, w.sets())

	w.resetTo(100)
	dep.Power.Dispatch(power.PBT_APMRESUMEAUTOMATIC)
	require.Equal(t, []uint32{30, 30}, w.sets())
}

func TestServeDeferThenDegrade(t *testing.T) {
	w := &fakeWMI{level: 50, max: 100, source: ec.SourceEC}
	c, dep := newTestController(t, RunConfig{
		ProxyTarget:        "amdgpu_bl0",
		MaxReprobeAttempts: 2,
	}, w, dmi.Identity{})

	// deferred attaches surface as service errors so the supervisor
	// re-invokes Serve with backoff; the attempt counter survives restarts
	for i := 0; i < 2; i++ {
		err := c.Serve(context.Background())
		require.Equal(t, ErrProxyDeferred, errors.Cause(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Serve(ctx)
	}()

	require.Eventually(t, func() bool {
		bl, ok := dep.Backlights.Acquire(BacklightName)
		if ok {
			dep.Backlights.Release(bl)
		}
		return ok
	}, time.Second, time.Millisecond*10)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("serve did not exit after cancellation")
	}
}

func TestLoopExitsWithPendingPersist(t *testing.T) {
	w := &fakeWMI{level: 50, max: 100, source: ec.SourceEC}
	c, _ := newTestController(t, RunConfig{}, w, dmi.Identity{})

	// a persist request arriving just before cancellation must not strand
	// the event loop on the debounce input
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			c.loop(ctx)
			close(done)
		}()

		c.requestPersist()
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: event loop did not exit after cancellation", i)
		}
	}
}

func TestPersistedLevelRoundTrip(t *testing.T) {
	w := &fakeWMI{level: 42, max: 100, source: ec.SourceEC}
	c, _ := newTestController(t, RunConfig{}, w, dmi.Identity{})

	require.NoError(t, c.attach())
	defer c.teardown()

	p := &persistedLevel{c: c}
	require.Equal(t, persistKey, p.Name())

	b := p.Value()
	require.NotEmpty(t, b)

	w2 := &fakeWMI{level: 80, max: 100, source: ec.SourceEC}
	c2, _ := newTestController(t, RunConfig{}, w2, dmi.Identity{})
	require.NoError(t, c2.attach())
	defer c2.teardown()

	loaded := &persistedLevel{c: c2}
	require.NoError(t, loaded.Load(b))
	require.NoError(t, loaded.Apply())

	require.Equal(t, []uint32{42}, w2.sets())
}

func TestPersistedLevelApplySkippedWithProxy(t *testing.T) {
	w := &fakeWMI{level: 50, max: 100, source: ec.SourceEC}
	c, dep := newTestController(t, RunConfig{
		ProxyTarget: "amdgpu_bl0",
	}, w, dmi.Identity{})

	_, err := dep.Backlights.Register("amdgpu_bl0", &targetOps{}, backlight.Properties{
		Brightness:    200,
		MaxBrightness: 255,
	})
	require.NoError(t, err)

	require.NoError(t, c.attach())
	defer c.teardown()
	setsAfterAttach := len(w.sets())

	// the imported proxy level is authoritative over a stale persisted one
	p := &persistedLevel{c: c}
	require.NoError(t, p.Load([]byte{10, 0, 0, 0}))
	require.NoError(t, p.Apply())
	require.Len(t, w.sets(), setsAfterAttach)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(RunConfig{}, nil)
	require.Error(t, err)

	_, err = New(RunConfig{}, &Dependencies{})
	require.Error(t, err)
}
