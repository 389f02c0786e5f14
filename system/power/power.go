package power

import (
	"context"
	"log"
	"sync"
)

// Defines the type of event
const (
	PBT_APMSUSPEND         uint32 = 4
	PBT_APMRESUMESUSPEND   uint32 = 7
	PBT_APMRESUMEAUTOMATIC uint32 = 18
)

// Subscription delivers power events to a single callback until it is
// unsubscribed
type Subscription struct {
	callback func(event uint32)
}

// Notifier fans suspend/resume events out to subscribers. Feed events into C
// (the platform listener does this) and run Serve under a supervisor.
type Notifier struct {
	C chan uint32

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewNotifier returns an empty notification hub
func NewNotifier() *Notifier {
	return &Notifier{
		C:    make(chan uint32, 4),
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a callback for power events. The callback is invoked
// from the notifier's serve loop; it must not block.
func (n *Notifier) Subscribe(fn func(event uint32)) *Subscription {
	s := &Subscription{
		callback: fn,
	}

	n.mu.Lock()
	n.subs[s] = struct{}{}
	n.mu.Unlock()

	return s
}

// Unsubscribe removes the subscription. When Unsubscribe returns, the
// callback is guaranteed not to be invoked again.
func (n *Notifier) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	n.mu.Lock()
	delete(n.subs, s)
	n.mu.Unlock()
}

// Dispatch synchronously delivers one event to every current subscriber
func (n *Notifier) Dispatch(event uint32) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for s := range n.subs {
		s.callback(event)
	}
}

func (n *Notifier) String() string {
	return "PowerNotifier"
}

// Serve dispatches events from C until the context is cancelled
func (n *Notifier) Serve(haltCtx context.Context) error {
	log.Println("power: starting notifier loop")
	for {
		select {
		case ev := <-n.C:
			n.Dispatch(ev)
		case <-haltCtx.Done():
			log.Println("power: exiting notifier loop")
			return nil
		}
	}
}
