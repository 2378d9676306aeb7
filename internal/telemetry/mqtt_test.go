package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/war/internal/config"
	"github.com/energizer-project/war/internal/events"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic string
	body  map[string]interface{}
}

// fakeClient records publishes. Methods it does not override panic.
type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	connected bool
	out       chan published
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var body map[string]interface{}
	json.Unmarshal(payload.([]byte), &body)
	f.out <- published{topic: topic, body: body}
	return doneToken{}
}

func newTestHandler(t *testing.T) (*MQTTHandler, *fakeClient, *events.EventBus) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.MQTT.Enabled = true
	cfg.MQTT.BrokerURL = "localhost"
	cfg.MQTT.Topic = "war/test/"

	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)

	h, err := NewMQTTHandler(cfg, bus)
	require.NoError(t, err)

	fake := &fakeClient{connected: true, out: make(chan published, 8)}
	h.client = fake
	return h, fake, bus
}

func TestNewMQTTHandlerDisabled(t *testing.T) {
	_, err := NewMQTTHandler(config.DefaultConfig(), events.NewEventBus())
	assert.Error(t, err)
}

func TestTopicPrefix(t *testing.T) {
	h, _, _ := newTestHandler(t)
	assert.Equal(t, "war/test/sessions", h.Topic(TopicSessions))

	h.prefix = ""
	assert.Equal(t, "load", h.Topic(TopicLoad))
}

func TestSessionEventsArePublished(t *testing.T) {
	h, fake, bus := newTestHandler(t)
	h.subscribeEvents()
	defer h.unsubscribeEvents()

	bus.Emit(context.Background(), events.Event{
		Type:    events.EventSessionCompleted,
		Source:  "session",
		Payload: events.SessionPayload{SessionID: "s1", Rounds: 26},
	})

	select {
	case p := <-fake.out:
		assert.Equal(t, "war/test/sessions", p.topic)
		assert.Equal(t, config.AppVersion, p.body["app_version"])
		assert.NotEmpty(t, p.body["timestamp"])
		inner := p.body["payload"].(map[string]interface{})
		assert.Equal(t, "session_completed", inner["event"])
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
	}
}

func TestLoadReportIsPublished(t *testing.T) {
	h, fake, bus := newTestHandler(t)
	h.subscribeEvents()
	defer h.unsubscribeEvents()

	bus.Emit(context.Background(), events.Event{
		Type:    events.EventLoadReport,
		Source:  "driver",
		Payload: events.LoadReportPayload{Target: "127.0.0.1:4444", Completed: 10},
	})

	select {
	case p := <-fake.out:
		assert.Equal(t, "war/test/load", p.topic)
		inner := p.body["payload"].(map[string]interface{})
		assert.EqualValues(t, 10, inner["completed"])
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
	}
}

func TestNothingPublishedWhileDisconnected(t *testing.T) {
	h, fake, _ := newTestHandler(t)
	fake.connected = false

	h.PublishShutdown()

	select {
	case p := <-fake.out:
		t.Fatalf("unexpected publish to %s", p.topic)
	case <-time.After(50 * time.Millisecond):
	}
}
