package controller

import (
	"github.com/lumastack/ecbacklight/system/dmi"
)

// QuirkFlags is a bit-set of firmware workaround toggles
type QuirkFlags uint32

// Quirk bit assignments
const (
	// QuirkRestoreLevelOnResume marks firmware that resets the EC brightness
	// level to 100% when resuming from suspend
	QuirkRestoreLevelOnResume QuirkFlags = 1 << 0

	// bits 1-7: reserved for future quirks; bits 8+: proxy target device names

	// QuirkProxyToAMDGPU marks firmware that erroneously reports EC backlight
	// control when brightness is actually driven by the amdgpu backlight
	QuirkProxyToAMDGPU QuirkFlags = 1 << 8
)

const amdgpuBacklightName = "amdgpu_bl0"

// Has reports whether any of the given bits are set
func (f QuirkFlags) Has(q QuirkFlags) bool {
	return f&q != 0
}

type quirkEntry struct {
	vendor         string
	productVersion string
	flags          QuirkFlags
}

var quirksTable = []quirkEntry{
	{
		// This quirk is present as of firmware revision HACN31WW
		vendor:         "LENOVO",
		productVersion: "Legion S7 15ACH6",
		flags:          QuirkRestoreLevelOnResume | QuirkProxyToAMDGPU,
	},
}

// DetectQuirks returns the union of the flags of every table entry matching
// the given platform identity. Matching zero entries is the common case and
// yields no quirks. Reserved bits in the result must not be interpreted.
func DetectQuirks(id dmi.Identity) QuirkFlags {
	var flags QuirkFlags
	for _, e := range quirksTable {
		if e.vendor == id.SysVendor && e.productVersion == id.ProductVersion {
			flags |= e.flags
		}
	}
	return flags
}

// withQuirks fills in configuration the quirk table asks for. Explicitly
// configured values always win over table-derived defaults.
func (conf RunConfig) withQuirks(flags QuirkFlags) RunConfig {
	if flags.Has(QuirkRestoreLevelOnResume) {
		conf.RestoreLevelOnResume = true
	}
	if conf.ProxyTarget == "" && flags.Has(QuirkProxyToAMDGPU) {
		conf.ProxyTarget = amdgpuBacklightName
	}
	return conf
}
