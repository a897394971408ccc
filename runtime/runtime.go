// Package runtime defines the contracts of the external messaging runtime
// as this module consumes them: the send collaborator, the live event
// stream, and the thread snapshot provider. The reconciler keeps the
// queue's view of failed messages consistent with that authority.
package runtime

import (
	"context"

	"weft/outbound-queue/queue"
)

const (
	EventMessageDelivered EventKind = "message_delivered"
	EventMessageFailed    EventKind = "message_failed"
	EventDeliveryReceipt  EventKind = "delivery_receipt"
	EventMessageInbound   EventKind = "message_inbound"
	EventMessageOutbound  EventKind = "message_outbound"
)

type EventKind string

// Event is one notification from the runtime's live stream. Delivery is
// at-least-once; consumers must tolerate duplicates.
type Event struct {
	Kind      EventKind
	MessageID string
	ThreadID  string
}

// Subscription is the runtime's event feed. Subscribe returns the
// unsubscribe function.
type Subscription interface {
	Subscribe(handler func(Event)) func()
}

// ThreadProvider yields a full read-only snapshot of all conversations.
type ThreadProvider interface {
	Threads(ctx context.Context) ([]queue.Thread, error)
}

// Sender is the runtime bridge that actually transmits a message. A send
// either completes with the new message id or fails; timeout policy lives
// on the bridge side.
type Sender interface {
	Send(ctx context.Context, destination string, draft queue.Draft) (string, error)
}
