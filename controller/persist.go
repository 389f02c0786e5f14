package controller

import (
	"encoding/binary"
	"sync"

	"github.com/lumastack/ecbacklight/system/persist"
)

const persistKey = "BacklightLevel"

// persistedLevel saves the last applied backlight level so a daemon restart
// comes back at the level the user chose
type persistedLevel struct {
	c *Controller

	mu       sync.Mutex
	last     uint32
	haveLast bool
}

var _ persist.Registry = &persistedLevel{}

// Name satisfies persist.Registry
func (p *persistedLevel) Name() string {
	return persistKey
}

// Value satisfies persist.Registry
func (p *persistedLevel) Value() []byte {
	p.c.mu.RLock()
	bl := p.c.bl
	p.c.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if bl != nil {
		p.last = uint32(bl.Brightness())
		p.haveLast = true
	}
	if !p.haveLast {
		return nil
	}

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, p.last)
	return buf
}

// Load satisfies persist.Registry
func (p *persistedLevel) Load(v []byte) error {
	if len(v) < 4 {
		return nil
	}

	p.mu.Lock()
	p.last = binary.LittleEndian.Uint32(v)
	p.haveLast = true
	p.mu.Unlock()

	return nil
}

// Apply satisfies persist.Registry. When a proxy target is bound its level
// was already imported at attach time and wins over the persisted value.
func (p *persistedLevel) Apply() error {
	p.mu.Lock()
	last := p.last
	haveLast := p.haveLast
	p.mu.Unlock()

	p.c.mu.RLock()
	bl := p.c.bl
	target := p.c.proxyTarget
	p.c.mu.RUnlock()

	if !haveLast || bl == nil || target != nil {
		return nil
	}

	return bl.SetBrightness(int(last))
}

// Close satisfies persist.Registry
func (p *persistedLevel) Close() error {
	return nil
}
