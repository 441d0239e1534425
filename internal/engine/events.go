package engine

import "sync"

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// EventBroker fans out per-task progress events to subscribers.
// It is safe for concurrent use.
//
// A topic exists only between Open and Close. Subscribing to a task that
// is unknown or already closed yields a closed channel, so a subscriber
// never waits on a task that will not publish again.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
}

type eventTopic struct {
	subs   map[int]chan string
	nextID int
}

// NewEventBroker creates a new event broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		topics: make(map[string]*eventTopic),
	}
}

// Open creates the topic for a task. Opening an existing topic is a no-op.
func (b *EventBroker) Open(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.topics[taskID]; !ok {
		b.topics[taskID] = &eventTopic{subs: make(map[int]chan string)}
	}
}

// Subscribe returns a channel that receives events for the given task and
// an unsubscribe function.
func (b *EventBroker) Subscribe(taskID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, subscriberBufferSize)
	t, ok := b.topics[taskID]
	if !ok {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends an event to all subscribers of the given task.
// Events are dropped for subscribers whose buffers are full.
func (b *EventBroker) Publish(taskID string, event string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[taskID]
	if !ok {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- event:
		default:
			// Drop event for slow subscribers to avoid blocking the workload.
		}
	}
}

// Close removes the task's topic and closes every subscriber channel.
func (b *EventBroker) Close(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[taskID]
	if !ok {
		return
	}
	delete(b.topics, taskID)
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// Len returns the number of open topics.
func (b *EventBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
