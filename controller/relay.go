package controller

import (
	"log"

	"github.com/lumastack/ecbacklight/system/backlight"
	"github.com/lumastack/ecbacklight/util"
)

// scaleLevel converts the current brightness level of from into to's range
func scaleLevel(from, to *backlight.Device) int {
	props := from.Properties()
	return util.FixpLinearInterpolate(0, 0, props.MaxBrightness, to.MaxBrightness(), props.Brightness)
}

// backlightOps backs the logical EC backlight endpoint
type backlightOps struct {
	c *Controller
}

var _ backlight.Ops = &backlightOps{}

// UpdateStatus relays the (scaled) level to the proxy target when one is
// bound, then issues the authoritative set to the EC. A relay failure is
// logged and never fails the EC-facing operation.
func (o *backlightOps) UpdateStatus(bd *backlight.Device) error {
	c := o.c

	c.mu.RLock()
	target := c.proxyTarget
	c.mu.RUnlock()

	if target != nil {
		level := scaleLevel(bd, target)
		if err := target.SetBrightness(level); err != nil {
			log.Printf("[controller] failed to relay backlight update to %q: %+v\n", target.Name(), err)
		}
	}

	if err := c.dep.EC.SetBrightness(uint32(bd.Brightness())); err != nil {
		return err
	}

	c.requestPersist()
	return nil
}

// Brightness reads the actual level back from the EC
func (o *backlightOps) Brightness(bd *backlight.Device) (int, error) {
	level, err := o.c.dep.EC.Brightness()
	if err != nil {
		return 0, err
	}
	return int(level), nil
}
