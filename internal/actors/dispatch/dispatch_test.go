package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSender records sent events. When release is set, Send blocks until it is closed.
type MockSender struct {
	mu      sync.Mutex
	sent    []model.UserEvent
	err     error
	release chan struct{}
}

func (m *MockSender) Send(ctx context.Context, event model.UserEvent) error {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, event)
	return nil
}

func (m *MockSender) Sent() []model.UserEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.UserEvent(nil), m.sent...)
}

type failures struct {
	mu     sync.Mutex
	events []model.UserEvent
	errs   []error
}

func (f *failures) hook(event model.UserEvent, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	f.errs = append(f.errs, err)
}

func (f *failures) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newDispatcher(t *testing.T, sender *MockSender, queueSize int, f *failures) *Dispatcher {
	t.Helper()
	logger, _ := test.NewNullLogger()
	d, err := NewDispatcher(DispatcherArgs{
		Sender:      sender,
		QueueSize:   queueSize,
		Workers:     2,
		SendTimeout: time.Second,
	}, WithFailureHook(f.hook), WithLogger(logger))
	require.NoError(t, err)
	return d
}

func event(id string) model.UserEvent {
	return model.UserEvent{ID: id, Email: id + "@example.com", Type: model.UserCreated}
}

func TestNewDispatcher_InvalidArgs(t *testing.T) {
	_, err := NewDispatcher(DispatcherArgs{QueueSize: 1, Workers: 1, SendTimeout: time.Second})
	assert.Error(t, err)

	_, err = NewDispatcher(DispatcherArgs{Sender: new(MockSender), Workers: 1, SendTimeout: time.Second})
	assert.Error(t, err)
}

func TestDispatcher_Delivers(t *testing.T) {
	sender := new(MockSender)
	f := new(failures)
	d := newDispatcher(t, sender, 10, f)
	d.Start()
	d.Start()

	for _, id := range []string{"a", "b", "c"} {
		d.Emit(event(id))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.ElementsMatch(t, []model.UserEvent{event("a"), event("b"), event("c")}, sender.Sent())
	assert.Zero(t, f.Len())
}

func TestDispatcher_SendFailureIsReportedNotRetried(t *testing.T) {
	boom := errors.New("broker down")
	sender := &MockSender{err: boom}
	f := new(failures)
	d := newDispatcher(t, sender, 10, f)
	d.Start()

	d.Emit(event("a"))
	require.NoError(t, d.Close(context.Background()))

	require.Equal(t, 1, f.Len())
	assert.Equal(t, "a", f.events[0].ID)
	assert.ErrorIs(t, f.errs[0], model.ErrEventDelivery)
	assert.ErrorIs(t, f.errs[0], boom)
}

func TestDispatcher_EmitNeverBlocks(t *testing.T) {
	sender := &MockSender{release: make(chan struct{})}
	f := new(failures)
	d := newDispatcher(t, sender, 1, f)
	// no workers running, so the queue holds a single event
	d.Emit(event("a"))

	done := make(chan struct{})
	go func() {
		d.Emit(event("b"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full queue")
	}
	require.Equal(t, 1, f.Len())
	assert.Equal(t, "b", f.events[0].ID)
	assert.ErrorIs(t, f.errs[0], model.ErrEventDelivery)

	d.Start()
	close(sender.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []model.UserEvent{event("a")}, sender.Sent())
}

func TestDispatcher_EmitAfterClose(t *testing.T) {
	sender := new(MockSender)
	f := new(failures)
	d := newDispatcher(t, sender, 1, f)
	d.Start()
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.Emit(event("late"))
	assert.Equal(t, 1, f.Len())
	assert.Empty(t, sender.Sent())
}

func TestDispatcher_CloseWithoutStartFailsQueued(t *testing.T) {
	sender := new(MockSender)
	f := new(failures)
	d := newDispatcher(t, sender, 5, f)
	d.Emit(event("a"))
	d.Emit(event("b"))

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, f.Len())
	assert.Empty(t, sender.Sent())
}

func TestDispatcher_CloseHonoursContext(t *testing.T) {
	sender := &MockSender{release: make(chan struct{})}
	f := new(failures)
	d := newDispatcher(t, sender, 5, f)
	d.Start()
	d.Emit(event("a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(sender.release)
}

func TestDispatcher_LogsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d, err := NewDispatcher(DispatcherArgs{
		Sender:      &MockSender{err: errors.New("boom")},
		QueueSize:   1,
		Workers:     1,
		SendTimeout: time.Second,
	}, WithLogger(logger))
	require.NoError(t, err)
	d.Start()
	d.Emit(event("a"))
	require.NoError(t, d.Close(context.Background()))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "a", entry.Data["event_id"])
	assert.Equal(t, "a@example.com", entry.Data["partition_key"])
}

// slowCreateSender holds USER_CREATED events back so that a concurrent worker would overtake them.
type slowCreateSender struct {
	mu    sync.Mutex
	order map[string][]model.EventType
}

func (s *slowCreateSender) Send(ctx context.Context, event model.UserEvent) error {
	if event.Type == model.UserCreated {
		time.Sleep(50 * time.Millisecond)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order[event.PartitionKey()] = append(s.order[event.PartitionKey()], event.Type)
	return nil
}

func TestDispatcher_KeepsOrderPerPartitionKey(t *testing.T) {
	sender := &slowCreateSender{order: make(map[string][]model.EventType)}
	logger, _ := test.NewNullLogger()
	d, err := NewDispatcher(DispatcherArgs{
		Sender:      sender,
		QueueSize:   64,
		Workers:     4,
		SendTimeout: time.Second,
	}, WithLogger(logger))
	require.NoError(t, err)
	d.Start()

	emails := []string{"ann@example.com", "bob@example.com", "carl@example.com", "dora@example.com"}
	for i, email := range emails {
		d.Emit(model.UserEvent{ID: "c" + email, UserID: int64(i), Email: email, Type: model.UserCreated})
		d.Emit(model.UserEvent{ID: "d" + email, UserID: int64(i), Email: email, Type: model.UserDeleted})
	}
	require.NoError(t, d.Close(context.Background()))

	for _, email := range emails {
		assert.Equal(t, []model.EventType{model.UserCreated, model.UserDeleted}, sender.order[email], email)
	}
}

func TestDispatcher_QueueSizeBoundsAllShards(t *testing.T) {
	sender := new(MockSender)
	f := new(failures)
	d := newDispatcher(t, sender, 2, f)

	d.Emit(event("a"))
	d.Emit(event("b"))
	d.Emit(event("c"))
	require.Equal(t, 1, f.Len())
	assert.Equal(t, "c", f.events[0].ID)

	d.Start()
	require.NoError(t, d.Close(context.Background()))
	assert.ElementsMatch(t, []model.UserEvent{event("a"), event("b")}, sender.Sent())
}
