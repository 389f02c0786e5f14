package controller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lumastack/ecbacklight/system/backlight"
	"github.com/lumastack/ecbacklight/system/dmi"
	"github.com/lumastack/ecbacklight/system/ec"
	"github.com/lumastack/ecbacklight/system/persist"
	"github.com/lumastack/ecbacklight/system/power"
	"github.com/lumastack/ecbacklight/util"

	"github.com/pkg/errors"
	suture "github.com/thejerf/suture/v4"
)

const (
	// BacklightName is the endpoint name this driver registers for the panel
	BacklightName = "ec_backlight"

	// DefaultMaxReprobeAttempts bounds how many times attachment is deferred
	// while waiting for the proxy target to appear
	DefaultMaxReprobeAttempts = 128
)

const (
	persistDelay = time.Second
)

// RunConfig contains the start up configuration for the controller
type RunConfig struct {
	// ProxyTarget names the backlight endpoint that receives relayed
	// brightness changes, on systems which erroneously report EC backlight
	// control. Empty disables relaying unless the quirk table names one.
	ProxyTarget string

	// MaxReprobeAttempts limits attach deferrals while the proxy target is
	// missing. Zero selects DefaultMaxReprobeAttempts.
	MaxReprobeAttempts int

	// RestoreLevelOnResume re-applies the backlight level when resuming from
	// suspend, on systems which reset the EC's level on resume
	RestoreLevelOnResume bool

	DryRun bool
}

// Dependencies contains the collaborators the controller drives
type Dependencies struct {
	EC             *ec.Control
	Backlights     *backlight.Registry
	DMI            dmi.Reader
	Power          *power.Notifier
	ConfigRegistry persist.ConfigRegistry
}

// Controller owns the logical EC backlight: it detects per-machine firmware
// quirks at attach time, relays brightness changes to the proxy target, and
// resynchronizes the EC level after resume. It is a suture service; a
// deferred attach returns an error so the supervisor re-invokes it with
// backoff.
type Controller struct {
	conf RunConfig
	dep  *Dependencies

	// counts proxy acquisition attempts across supervised re-invocations.
	// Only the attach sequence mutates it, and the supervisor serializes
	// attach with itself.
	reprobeAttempts int

	mu          sync.RWMutex
	bl          *backlight.Device
	proxyTarget *backlight.Device
	resumeSub   *power.Subscription

	persistCh chan struct{}
}

// New validates the dependency bundle and returns a Controller
func New(conf RunConfig, dep *Dependencies) (*Controller, error) {
	if dep == nil {
		return nil, errors.New("[controller] nil Dependencies is invalid")
	}
	if dep.EC == nil {
		return nil, errors.New("[controller] nil EC control is invalid")
	}
	if dep.Backlights == nil {
		return nil, errors.New("[controller] nil backlight registry is invalid")
	}
	if dep.DMI == nil {
		return nil, errors.New("[controller] nil DMI reader is invalid")
	}
	if dep.Power == nil {
		return nil, errors.New("[controller] nil power notifier is invalid")
	}
	if dep.ConfigRegistry == nil {
		return nil, errors.New("[controller] nil config registry is invalid")
	}
	if conf.MaxReprobeAttempts == 0 {
		conf.MaxReprobeAttempts = DefaultMaxReprobeAttempts
	}

	c := &Controller{
		conf:      conf,
		dep:       dep,
		persistCh: make(chan struct{}, 1),
	}
	dep.ConfigRegistry.Register(&persistedLevel{c: c})

	return c, nil
}

func (c *Controller) String() string {
	return "Controller"
}

// Serve runs one attachment lifecycle: attach, process events until the
// context is cancelled, then tear down. Part of suture.Service.
func (c *Controller) Serve(haltCtx context.Context) error {
	if err := c.attach(); err != nil {
		switch errors.Cause(err) {
		case ErrProxyDeferred:
			log.Printf("[controller] deferring attach: %s\n", err)
			return err
		case ErrNotApplicable:
			log.Printf("[controller] not attaching: %s\n", err)
			return suture.ErrDoNotRestart
		default:
			log.Printf("[controller] attach failed: %+v\n", err)
			return err
		}
	}
	defer c.teardown()

	// restore persisted state now that the endpoint exists
	if err := c.dep.ConfigRegistry.Load(); err != nil {
		log.Printf("[controller] cannot load persisted state: %+v\n", err)
	} else if err := c.dep.ConfigRegistry.Apply(); err != nil {
		log.Printf("[controller] cannot apply persisted state: %+v\n", err)
	}

	c.loop(haltCtx)

	return nil
}

// attach resolves dependencies and registers the logical backlight. It
// mirrors a device probe: it can reject the device permanently
// (ErrNotApplicable), ask to be re-invoked later (ErrProxyDeferred), or
// fail outright on firmware errors.
func (c *Controller) attach() error {
	identity, err := c.dep.DMI.Identity()
	if err != nil {
		return errors.Wrap(err, "[controller] cannot read platform identity")
	}

	flags := DetectQuirks(identity)
	if flags != 0 {
		log.Printf("[controller] quirks 0x%x active for %q %q\n", uint32(flags), identity.SysVendor, identity.ProductVersion)
	}
	conf := c.conf.withQuirks(flags)

	var target *backlight.Device
	if conf.ProxyTarget != "" {
		var ok bool
		target, ok = c.dep.Backlights.Acquire(conf.ProxyTarget)
		if !ok {
			// the target backlight device might not be ready yet; try again
			// and disable proxying if it fails too many times
			if c.reprobeAttempts < conf.MaxReprobeAttempts {
				c.reprobeAttempts++
				return errors.Wrapf(ErrProxyDeferred, "%q (attempt %d of %d)", conf.ProxyTarget, c.reprobeAttempts, conf.MaxReprobeAttempts)
			}
			log.Printf("[controller] unable to acquire %q after %d attempts, disabling backlight proxy\n", conf.ProxyTarget, conf.MaxReprobeAttempts)
		}
	}

	attached := false
	defer func() {
		if !attached && target != nil {
			c.dep.Backlights.Release(target)
		}
	}()

	source, err := c.dep.EC.BrightnessSource()
	if err != nil {
		return errors.Wrap(err, "[controller] cannot read brightness source")
	}

	// this driver is only to be used when brightness control is handled by
	// the EC; otherwise the GPU driver(s) should control brightness
	if source != ec.SourceEC {
		return errors.Wrapf(ErrNotApplicable, "brightness source is %s", source)
	}

	max, err := c.dep.EC.MaxBrightness()
	if err != nil {
		return errors.Wrap(err, "[controller] cannot read max brightness")
	}
	level, err := c.dep.EC.Brightness()
	if err != nil {
		return errors.Wrap(err, "[controller] cannot read brightness")
	}

	bl, err := c.dep.Backlights.Register(BacklightName, &backlightOps{c: c}, backlight.Properties{
		Brightness:    int(level),
		MaxBrightness: int(max),
		// identify this endpoint as firmware-driven so it is prioritized
		// over any raw GPU endpoint for the same panel
		Type: backlight.TypeFirmware,
	})
	if err != nil {
		return errors.Wrap(err, "[controller] cannot register backlight endpoint")
	}

	c.mu.Lock()
	c.bl = bl
	c.mu.Unlock()

	if target != nil {
		// import the target's current level so the new endpoint starts in a
		// visually consistent state. The proxy binding is established after
		// the import, so the import itself is not relayed back.
		imported := scaleLevel(target, bl)
		if err := bl.SetBrightness(imported); err != nil {
			log.Printf("[controller] unable to import initial brightness level from %q: %+v\n", conf.ProxyTarget, err)
		}

		c.mu.Lock()
		c.proxyTarget = target
		c.mu.Unlock()

		log.Printf("[controller] relaying brightness changes to %q\n", conf.ProxyTarget)
	}

	if conf.RestoreLevelOnResume {
		sub := c.dep.Power.Subscribe(c.handlePowerEvent)
		c.mu.Lock()
		c.resumeSub = sub
		c.mu.Unlock()
		log.Println("[controller] restoring backlight level on resume")
	}

	attached = true
	log.Printf("[controller] attached, %s level %d of %d\n", BacklightName, level, max)

	return nil
}

// teardown releases everything attach acquired. The resume subscription is
// revoked first so no callback fires against a half-torn-down relay;
// in-flight brightness sets hold their own reference on the target.
func (c *Controller) teardown() {
	// snapshot state while the endpoint is still live
	if err := c.dep.ConfigRegistry.Save(); err != nil {
		log.Printf("[controller] cannot save persisted state: %+v\n", err)
	}

	c.mu.Lock()
	bl := c.bl
	target := c.proxyTarget
	sub := c.resumeSub
	c.bl = nil
	c.proxyTarget = nil
	c.resumeSub = nil
	c.mu.Unlock()

	if sub != nil {
		c.dep.Power.Unsubscribe(sub)
	}
	if bl != nil {
		c.dep.Backlights.Unregister(bl)
	}
	if target != nil {
		c.dep.Backlights.Release(target)
	}

	log.Println("[controller] teardown complete")
}

// loop persists brightness changes, debounced so slider drags do not hammer
// the Registry
func (c *Controller) loop(haltCtx context.Context) {
	noisy, clean := util.Debounce(haltCtx, persistDelay)

	for {
		select {
		case <-c.persistCh:
			// the debouncer exits with haltCtx; never block on a send it
			// will not receive
			select {
			case noisy <- struct{}{}:
			case <-haltCtx.Done():
				log.Println("[controller] exiting event loop")
				return
			}
		case ev := <-clean:
			log.Printf("[controller] persisting backlight level after %d changes\n", ev.Counter)
			if err := c.dep.ConfigRegistry.Save(); err != nil {
				log.Printf("[controller] cannot save persisted state: %+v\n", err)
			}
		case <-haltCtx.Done():
			log.Println("[controller] exiting event loop")
			return
		}
	}
}

// handlePowerEvent re-issues the current brightness level after resume. On
// quirked systems the EC resets to 100% during suspend while the OS still
// believes the pre-suspend level is current; pushing the level through the
// normal set path syncs the EC back up.
func (c *Controller) handlePowerEvent(ev uint32) {
	if ev != power.PBT_APMRESUMEAUTOMATIC {
		return
	}

	c.mu.RLock()
	bl := c.bl
	c.mu.RUnlock()
	if bl == nil {
		return
	}

	log.Println("[controller] resynchronizing backlight level after resume")
	if err := bl.UpdateStatus(); err != nil {
		log.Printf("[controller] failed to refresh backlight level: %+v\n", err)
	}
}

func (c *Controller) requestPersist() {
	select {
	case c.persistCh <- struct{}{}:
	default:
	}
}
