package dimmer

import (
	"context"
	"sync"

	"github.com/lumirise/lumirise/internal/broadcast"
	"github.com/lumirise/lumirise/internal/mqttsup"
)

// fakeBroker is a minimal in-memory stand-in for the MQTT supervisor,
// satisfying Broker for monitor and publisher tests.
type fakeBroker struct {
	mu          sync.Mutex
	subscribed  []string
	published   []publishedMessage
	hub         *broadcast.Hub[mqttsup.IncomingMessage]
}

type publishedMessage struct {
	topic   string
	payload string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{hub: broadcast.New[mqttsup.IncomingMessage](16)}
}

func (f *fakeBroker) Subscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeBroker) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{topic: topic, payload: string(payload)})
	return nil
}

func (f *fakeBroker) MessageReceived() (<-chan mqttsup.IncomingMessage, func()) {
	return f.hub.Subscribe()
}

func (f *fakeBroker) deliver(topic, payload string) {
	f.hub.Publish(mqttsup.IncomingMessage{Topic: topic, Payload: []byte(payload)})
}

func (f *fakeBroker) publishedSnapshot() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMessage, len(f.published))
	copy(out, f.published)
	return out
}
