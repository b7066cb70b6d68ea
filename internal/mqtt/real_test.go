package mqtt

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/bt-sensor-relay/internal/sensor"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// startBroker runs an in-process broker on addr. The returned stop function
// may be called early; it is also registered as cleanup.
func startBroker(t *testing.T, addr string) (stop func()) {
	t.Helper()
	server := mochi.New(&mochi.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "tcp",
		Address: addr,
	})))
	require.NoError(t, server.Serve())

	var once sync.Once
	stop = func() { once.Do(func() { _ = server.Close() }) }
	t.Cleanup(stop)
	return stop
}

func newTestClient(t *testing.T, addr string) *RealClient {
	t.Helper()
	c, err := NewRealClient(Options{
		Broker:     "tcp://" + addr,
		ClientID:   "relay-under-test",
		BufferSize: 10,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:        func() time.Time { return testTime },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// observe connects a separate client subscribed to filter.
func observe(t *testing.T, addr, filter string) <-chan paho.Message {
	t.Helper()
	msgs := make(chan paho.Message, 64)
	opts := paho.NewClientOptions().
		AddBroker("tcp://" + addr).
		SetClientID("observer-" + filter)
	client := paho.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	t.Cleanup(func() { client.Disconnect(100) })

	token = client.Subscribe(filter, 1, func(_ paho.Client, m paho.Message) { msgs <- m })
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	return msgs
}

func receive(t *testing.T, msgs <-chan paho.Message) paho.Message {
	t.Helper()
	select {
	case m := <-msgs:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestRealClientPublishesRetainedReading(t *testing.T) {
	addr := freeAddr(t)
	startBroker(t, addr)
	c := newTestClient(t, addr)
	require.True(t, c.IsConnected())

	require.NoError(t, c.Publish(tempReading()))

	// A subscriber arriving later still gets the retained state.
	m := receive(t, observe(t, addr, "/sensor/#"))
	assert.Equal(t, "/sensor/T101/t/state", m.Topic())
	assert.True(t, m.Retained())

	var body map[string]any
	require.NoError(t, json.Unmarshal(m.Payload(), &body))
	assert.Equal(t, "T101", body["instance"])
	assert.Equal(t, 21.37, body["temperature"])
	assert.Equal(t, float64(-64), body["rssi"])
}

func TestRealClientSubscribeDeliversGatewayMessages(t *testing.T) {
	addr := freeAddr(t)
	startBroker(t, addr)
	c := newTestClient(t, addr)

	type delivery struct {
		topic   string
		payload string
	}
	got := make(chan delivery, 1)
	require.NoError(t, c.Subscribe(DefaultGatewayTopic, func(topic string, payload []byte) {
		got <- delivery{topic, string(payload)}
	}))

	pub := paho.NewClient(paho.NewClientOptions().AddBroker("tcp://" + addr).SetClientID("gateway-1"))
	token := pub.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	defer pub.Disconnect(100)
	token = pub.Publish("/bt-sensor-gw/gw1/value", 1, false, `{"data":"dada","rssi":-70}`)
	require.True(t, token.WaitTimeout(5*time.Second))

	select {
	case d := <-got:
		assert.Equal(t, "/bt-sensor-gw/gw1/value", d.topic)
		assert.Equal(t, `{"data":"dada","rssi":-70}`, d.payload)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway message not delivered")
	}
}

func TestRealClientPublishSystem(t *testing.T) {
	addr := freeAddr(t)
	startBroker(t, addr)
	c := newTestClient(t, addr)
	msgs := observe(t, addr, TopicSystem)

	require.NoError(t, c.PublishSystem(SystemEvent{Timestamp: testTime, Event: "HEARTBEAT"}))

	m := receive(t, msgs)
	assert.JSONEq(t, `{"system":{"timestamp":"2026-01-01T12:00:00Z","event":"HEARTBEAT"}}`, string(m.Payload()))
}

func TestRealClientBuffersWhileBrokerDown(t *testing.T) {
	addr := freeAddr(t)
	stop := startBroker(t, addr)
	c := newTestClient(t, addr)

	stop()
	require.Eventually(t, func() bool { return !c.IsConnected() }, 5*time.Second, 20*time.Millisecond)

	assert.ErrorIs(t, c.Publish(tempReading()), ErrBuffered)
	assert.Equal(t, 1, c.Buffered())

	startBroker(t, addr)
	require.Eventually(t, func() bool { return c.IsConnected() && c.Buffered() == 0 }, 20*time.Second, 50*time.Millisecond)

	m := receive(t, observe(t, addr, "/sensor/#"))
	assert.Equal(t, "/sensor/T101/t/state", m.Topic())
}

func TestRealClientClosed(t *testing.T) {
	addr := freeAddr(t)
	startBroker(t, addr)
	c := newTestClient(t, addr)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Publish(tempReading()), ErrClosed)
	assert.ErrorIs(t, c.Subscribe(DefaultGatewayTopic, func(string, []byte) {}), ErrClosed)
}

func TestNewRealClientUnreachableBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the connect timeout")
	}
	_, err := NewRealClient(Options{
		Broker: "tcp://" + freeAddr(t),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	assert.Error(t, err)
}

// gateway connects a client that publishes envelopes like a gateway node.
func gateway(t *testing.T, addr, id string) paho.Client {
	t.Helper()
	client := paho.NewClient(paho.NewClientOptions().AddBroker("tcp://" + addr).SetClientID(id))
	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	t.Cleanup(func() { client.Disconnect(100) })
	return client
}

// A handler that publishes must not stall the client's own acknowledgements
// while further gateway messages keep arriving.
func TestRealClientHandlerPublishesDuringBurst(t *testing.T) {
	addr := freeAddr(t)
	startBroker(t, addr)
	c := newTestClient(t, addr)

	const burst = 20
	results := make(chan error, burst)
	var mu sync.Mutex
	var order []string
	require.NoError(t, c.Subscribe(DefaultGatewayTopic, func(topic string, payload []byte) {
		mu.Lock()
		order = append(order, string(payload))
		mu.Unlock()
		results <- c.Publish(&sensor.Current{
			Common:         sensor.Common{Tag: "c", Instance: "C001", Vcc: 3000, RSSI: -60},
			Current:        1.5,
			MessageCounter: 1,
		})
	}))

	gw := gateway(t, addr, "gateway-burst")
	tokens := make([]paho.Token, 0, burst)
	for i := 0; i < burst; i++ {
		tokens = append(tokens, gw.Publish("/bt-sensor-gw/gw1/value", 1, false, fmt.Sprintf(`{"seq":%d}`, i)))
	}
	for _, tok := range tokens {
		require.True(t, tok.WaitTimeout(5*time.Second))
		require.NoError(t, tok.Error())
	}

	deadline := time.After(3 * time.Second)
	for i := 0; i < burst; i++ {
		select {
		case err := <-results:
			require.NoError(t, err, "publish %d from handler", i)
		case <-deadline:
			t.Fatalf("only %d of %d handler publishes completed", i, burst)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		assert.Equal(t, fmt.Sprintf(`{"seq":%d}`, i), got, "handlers run in arrival order")
	}
	assert.Equal(t, 0, c.Inbound())
}

func TestRealClientPublishRaw(t *testing.T) {
	addr := freeAddr(t)
	startBroker(t, addr)
	c := newTestClient(t, addr)
	msgs := observe(t, addr, DefaultGatewayTopic)

	require.NoError(t, c.PublishRaw("/bt-sensor-gw/sim/value", []byte(`{"data":"00","rssi":-50}`), false))

	m := receive(t, msgs)
	assert.Equal(t, "/bt-sensor-gw/sim/value", m.Topic())
	assert.False(t, m.Retained())
	assert.Equal(t, `{"data":"00","rssi":-50}`, string(m.Payload()))
}
