package ports

import (
	"context"

	"github.com/rbroggi/userlifecycle/internal/core/model"
)

// Sender is the port for publishing outbound user-events to the event channel.
// Implementations use event.PartitionKey() as the distribution key.
type Sender interface {
	// Send sends user-event data and waits for the channel to accept it.
	Send(ctx context.Context, event model.UserEvent) error
}

// EventEmitter hands user-events over for asynchronous delivery.
type EventEmitter interface {
	// Emit returns immediately. Delivery outcome is never reported back to the caller.
	Emit(event model.UserEvent)
}
