package mqtt

import (
	"strings"
	"sync"
)

// Message is one recorded publish.
type Message struct {
	Topic    string
	Retained bool
	Payload  []byte
}

// FakeClient records publishes and lets tests deliver inbound messages.
type FakeClient struct {
	mu        sync.Mutex
	Published []Message
	handlers  map[string]MessageHandler
	hooks     []func()
	Closed    bool

	// PublishError, if set, is returned by Publish.
	PublishError error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{handlers: map[string]MessageHandler{}}
}

func (f *FakeClient) Publish(topic string, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Published = append(f.Published, Message{Topic: topic, Retained: retained, Payload: payload})
	return nil
}

func (f *FakeClient) Subscribe(filter string, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[filter] = handler
	return nil
}

func (f *FakeClient) OnConnect(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, fn)
}

func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Connect runs the connect hooks as a broker connection would.
func (f *FakeClient) Connect() {
	f.mu.Lock()
	hooks := append([]func(){}, f.hooks...)
	f.mu.Unlock()
	for _, hook := range hooks {
		hook()
	}
}

// Deliver hands payload to every handler whose filter matches topic.
func (f *FakeClient) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	var matched []MessageHandler
	for filter, handler := range f.handlers {
		if matchTopic(filter, topic) {
			matched = append(matched, handler)
		}
	}
	f.mu.Unlock()
	for _, handler := range matched {
		handler(topic, payload)
	}
}

// Last returns the most recent publish on topic.
func (f *FakeClient) Last(topic string) (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Published) - 1; i >= 0; i-- {
		if f.Published[i].Topic == topic {
			return f.Published[i], true
		}
	}
	return Message{}, false
}

// Reset clears recorded publishes.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = nil
}

func matchTopic(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		if part == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if part != "+" && part != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
