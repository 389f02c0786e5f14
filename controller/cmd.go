package controller

import (
	"github.com/lumastack/ecbacklight/system/backlight"
	"github.com/lumastack/ecbacklight/system/dmi"
	"github.com/lumastack/ecbacklight/system/ec"
	"github.com/lumastack/ecbacklight/system/persist"
	"github.com/lumastack/ecbacklight/system/power"
)

// GetDependencies builds the collaborator bundle for the given configuration.
// A dry run swaps the firmware, identity, and persistence surfaces for
// simulated ones so no hardware IO is performed.
func GetDependencies(conf RunConfig) (*Dependencies, error) {
	var wmi ec.WMI
	var config persist.ConfigRegistry
	var identity dmi.Reader
	var err error

	if conf.DryRun {
		wmi, _ = ec.NewDryWMI()
		config, err = persist.NewMemoryConfigHelper()
		if err != nil {
			return nil, err
		}
		identity = &dmi.StaticReader{}
	} else {
		wmi, err = ec.NewWMI()
		if err != nil {
			return nil, err
		}
		config, err = persist.NewRegistryConfigHelper()
		if err != nil {
			return nil, err
		}
		identity, err = dmi.NewSystemReader()
		if err != nil {
			return nil, err
		}
	}

	control, err := ec.NewControl(wmi)
	if err != nil {
		return nil, err
	}

	return &Dependencies{
		EC:             control,
		Backlights:     backlight.NewRegistry(),
		DMI:            identity,
		Power:          power.NewNotifier(),
		ConfigRegistry: config,
	}, nil
}
