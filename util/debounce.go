package util

import (
	"context"
	"time"
)

// DebounceEvent contains the last event fired to the input channel
type DebounceEvent struct {
	Counter int64
	Data    interface{}
}

// Debounce returns two channels for input and output. Events sent to the
// input channel are coalesced until the input has been quiet for the wait
// interval, then the last event (with a count of how many were absorbed) is
// emitted on the output channel.
func Debounce(haltCtx context.Context, wait time.Duration) (noisy chan<- interface{}, clean <-chan DebounceEvent) {
	in := make(chan interface{})
	out := make(chan DebounceEvent, 1) // do not block our goroutine

	go func() {
		ticker := time.NewTicker(wait)
		defer ticker.Stop()

		var lastTime time.Time
		var counter int64
		var data interface{}

		for {
			select {
			case data = <-in:
				lastTime = time.Now()
				counter++
			case <-ticker.C:
				if !lastTime.IsZero() && time.Since(lastTime) > wait {
					out <- DebounceEvent{
						Counter: counter,
						Data:    data,
					}

					lastTime = time.Time{}
					counter = 0
				}
			case <-haltCtx.Done():
				return
			}
		}
	}()

	return in, out
}
