package background

import (
	"context"
	"log"

	"github.com/lumastack/ecbacklight/util"
)

// Notifier surfaces user-facing messages from background services. The
// daemon has no UI surface, so messages go to the log.
type Notifier struct {
	C chan util.Notification
}

func NewNotifier() *Notifier {
	return &Notifier{
		C: make(chan util.Notification, 10),
	}
}

func (n *Notifier) String() string {
	return "Notifier"
}

func (n *Notifier) Serve(haltCtx context.Context) error {
	log.Println("[notifier] starting notify loop")
	for {
		select {
		case msg := <-n.C:
			log.Printf("[notifier] %s: %s\n", msg.Title, msg.Message)
		case <-haltCtx.Done():
			log.Println("[notifier] exiting notify loop")
			return nil
		}
	}
}
