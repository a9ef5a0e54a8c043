package dispatch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/rbroggi/userlifecycle/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

var _ ports.EventEmitter = (*Dispatcher)(nil)

var (
	errQueueFull = errors.New("dispatch queue is full")
	errClosed    = errors.New("dispatcher is closed")
)

// DispatcherArgs are the mandatory arguments to build a Dispatcher.
type DispatcherArgs struct {
	// Sender delivers the events.
	Sender ports.Sender

	// QueueSize bounds the number of events waiting for a worker.
	QueueSize int

	// Workers is the number of concurrent senders. Events sharing a partition key are always
	// handled by the same worker, in emission order.
	Workers int

	// SendTimeout bounds every single delivery attempt.
	SendTimeout time.Duration
}

// DispatcherOptArgs are the optional arguments for building a Dispatcher
type DispatcherOptArgs = func(*Dispatcher)

// WithFailureHook registers a function invoked with every event that could not be delivered.
// The error wraps model.ErrEventDelivery. The hook runs on the emitting or worker goroutine.
func WithFailureHook(hook func(event model.UserEvent, err error)) DispatcherOptArgs {
	return func(d *Dispatcher) {
		d.onFailure = hook
	}
}

// WithLogger overrides the logger delivery failures are reported to.
func WithLogger(logger log.FieldLogger) DispatcherOptArgs {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// Dispatcher is a fire-and-forget EventEmitter: Emit enqueues into a bounded queue that a pool
// of workers drains through the Sender. Failed deliveries are logged and never retried.
type Dispatcher struct {
	sender      ports.Sender
	sendTimeout time.Duration
	onFailure   func(event model.UserEvent, err error)
	logger      log.FieldLogger

	// shards holds one queue per worker, picked by partition key.
	shards    []chan model.UserEvent
	queueSize int64
	// pending counts events queued across every shard.
	pending atomic.Int64

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Workers only run after Start.
func NewDispatcher(args DispatcherArgs, optArgs ...DispatcherOptArgs) (*Dispatcher, error) {
	if args.Sender == nil {
		return nil, errors.New("nil sender")
	}
	if args.QueueSize <= 0 || args.Workers <= 0 || args.SendTimeout <= 0 {
		return nil, fmt.Errorf("queue size, workers and send timeout must be positive: %d, %d, %s",
			args.QueueSize, args.Workers, args.SendTimeout)
	}
	d := &Dispatcher{
		sender:      args.Sender,
		sendTimeout: args.SendTimeout,
		queueSize:   int64(args.QueueSize),
		shards:      make([]chan model.UserEvent, args.Workers),
		logger:      log.StandardLogger(),
	}
	for i := range d.shards {
		d.shards[i] = make(chan model.UserEvent, args.QueueSize)
	}
	for _, opt := range optArgs {
		opt(d)
	}
	return d, nil
}

// Start launches the workers. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	d.wg.Add(len(d.shards))
	for _, shard := range d.shards {
		go d.work(shard)
	}
}

// Emit hands the event over without blocking. A full queue or a closed dispatcher counts as a
// delivery failure.
func (d *Dispatcher) Emit(event model.UserEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.fail(event, errClosed)
		return
	}
	if d.pending.Add(1) > d.queueSize {
		d.pending.Add(-1)
		d.fail(event, errQueueFull)
		return
	}
	// every shard can hold queueSize events, so the send never blocks
	d.shards[d.shardOf(event)] <- event
}

func (d *Dispatcher) shardOf(event model.UserEvent) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(event.PartitionKey()))
	return int(h.Sum32() % uint32(len(d.shards)))
}

// Close stops accepting events and waits until the queued ones are delivered or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, shard := range d.shards {
		close(shard)
	}
	started := d.started
	d.mu.Unlock()

	if !started {
		for _, shard := range d.shards {
			for event := range shard {
				d.pending.Add(-1)
				d.fail(event, errClosed)
			}
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("events still queued on close: %w", ctx.Err())
	}
}

func (d *Dispatcher) work(shard <-chan model.UserEvent) {
	defer d.wg.Done()
	for event := range shard {
		d.pending.Add(-1)
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		err := d.sender.Send(ctx, event)
		cancel()
		if err != nil {
			d.fail(event, err)
		}
	}
}

func (d *Dispatcher) fail(event model.UserEvent, cause error) {
	err := fmt.Errorf("%w: %w", model.ErrEventDelivery, cause)
	d.logger.WithError(err).WithFields(log.Fields{
		"event_id":      event.ID,
		"event_type":    event.Type,
		"partition_key": event.PartitionKey(),
	}).Error("user event was not delivered")
	if d.onFailure != nil {
		d.onFailure(event, err)
	}
}
