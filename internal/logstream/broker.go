package logstream

import (
	"sync"
)

// Topics published by the runtime.
const (
	TopicApp     = "app"
	TopicInstall = "install"
)

// LogBroker fans log lines out to in-process subscribers, keyed by topic.
type LogBroker struct {
	subscribers map[string]map[chan string]bool // topic -> set of subscriber channels
	mu          sync.RWMutex
}

// NewBroker creates a new log broker
func NewBroker() *LogBroker {
	return &LogBroker{
		subscribers: make(map[string]map[chan string]bool),
	}
}

// Subscribe creates a new subscription for a topic
func (b *LogBroker) Subscribe(topic string) chan string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, 100)

	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[chan string]bool)
	}
	b.subscribers[topic][ch] = true

	return ch
}

// Unsubscribe removes a subscription. Calling it after Close is a no-op.
func (b *LogBroker) Unsubscribe(topic string, ch chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, exists := b.subscribers[topic]
	if !exists || !subs[ch] {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, topic)
	}
}

// Publish sends a log line to all subscribers of a topic
func (b *LogBroker) Publish(topic, line string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[topic] {
		// Non-blocking send, a full subscriber misses the line
		select {
		case ch <- line:
		default:
		}
	}
}

// Close closes all subscriptions for a topic
func (b *LogBroker) Close(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, exists := b.subscribers[topic]; exists {
		for ch := range subs {
			close(ch)
		}
		delete(b.subscribers, topic)
	}
}

// HasSubscribers returns true if there are active subscribers for a topic
func (b *LogBroker) HasSubscribers(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers[topic]) > 0
}
