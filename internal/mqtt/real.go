package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/bt-sensor-relay/internal/sensor"
)

var (
	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("mqtt: client closed")
	// ErrBuffered reports that a message was queued for replay after
	// reconnecting rather than sent. It may still be dropped if the buffer
	// overflows or the client is closed first.
	ErrBuffered = errors.New("mqtt: offline, message buffered")
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	retryInterval  = 5 * time.Second
)

// Options configures a RealClient.
type Options struct {
	Broker   string
	Username string
	Password string
	// ClientID defaults to "bt-sensor-relay-" plus a random suffix.
	ClientID string
	// BufferSize bounds the readings queued while disconnected.
	BufferSize int
	Logger     *slog.Logger
	Now        func() time.Time
}

// RealClient subscribes to gateway topics and publishes readings on an
// actual MQTT broker. Publishes made while the connection is down are queued
// and replayed when it comes back. Subscription handlers run on a dedicated
// goroutine in arrival order and may publish.
type RealClient struct {
	client paho.Client
	logger *slog.Logger
	now    func() time.Time
	inbox  *inbox

	mu        sync.Mutex
	buffer    *offlineBuffer
	subs      map[string]MessageHandler
	connected bool // at least one connection completed
	closed    bool
}

// NewRealClient connects to the broker, waiting up to ten seconds for the
// first connection.
func NewRealClient(opts Options) (*RealClient, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BufferSize < 1 {
		opts.BufferSize = 100
	}
	if opts.ClientID == "" {
		opts.ClientID = "bt-sensor-relay-" + uuid.NewString()[:8]
	}

	c := &RealClient{
		logger: opts.Logger,
		now:    opts.Now,
		inbox:  newInbox(),
		buffer: newOfflineBuffer(opts.BufferSize, opts.Logger),
		subs:   make(map[string]MessageHandler),
	}

	will, err := FormatSystemPayload(WillEvent(opts.Now()))
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.logger.Warn("mqtt: connection lost", "error", err)
		})

	c.client = paho.NewClient(po)
	go c.inbox.run()
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.client.Disconnect(0)
		c.inbox.close()
		return nil, fmt.Errorf("connect to %s: timeout after %v", opts.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		c.inbox.close()
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, err)
	}

	c.logger.Info("mqtt: connected", "broker", opts.Broker, "client_id", opts.ClientID)
	return c, nil
}

// onConnect restores subscriptions and flushes the offline buffer. paho runs
// it on its own goroutine after every successful (re)connect.
func (c *RealClient) onConnect(client paho.Client) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	reconnect := c.connected
	c.connected = true
	subs := make(map[string]MessageHandler, len(c.subs))
	for f, h := range c.subs {
		subs[f] = h
	}
	pending := c.buffer.drainAll()
	c.mu.Unlock()

	for filter, handler := range subs {
		if err := c.subscribe(filter, handler); err != nil {
			c.logger.Error("mqtt: resubscribe failed", "filter", filter, "error", err)
		}
	}

	if len(pending) > 0 {
		c.logger.Info("mqtt: replaying buffered messages", "count", len(pending))
	}
	for i, m := range pending {
		if err := c.send(m); err != nil {
			c.logger.Warn("mqtt: replay failed, requeueing", "topic", m.topic, "error", err)
			c.mu.Lock()
			for _, rest := range pending[i:] {
				c.buffer.push(rest)
			}
			c.mu.Unlock()
			break
		}
	}

	if reconnect {
		c.logger.Info("mqtt: reconnected")
		if err := c.PublishSystem(SystemEvent{Timestamp: c.now(), Event: "RECONNECTED"}); err != nil {
			c.logger.Warn("mqtt: publish reconnected event", "error", err)
		}
	}
}

// Subscribe registers handler for filter. The subscription is restored
// automatically after a reconnect.
func (c *RealClient) Subscribe(filter string, handler MessageHandler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.subs[filter] = handler
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.subscribe(filter, handler)
}

func (c *RealClient) subscribe(filter string, handler MessageHandler) error {
	token := c.client.Subscribe(filter, 1, func(_ paho.Client, m paho.Message) {
		c.inbox.push(inbound{handler: handler, topic: m.Topic(), payload: m.Payload()})
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	c.logger.Info("mqtt: subscribed", "filter", filter)
	return nil
}

// Publish sends a reading to its state topic, QoS 1 and retained.
// While disconnected the reading is buffered and ErrBuffered is returned.
func (c *RealClient) Publish(event sensor.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return c.publish(bufferedMsg{
		topic:    ReadingTopic(event),
		payload:  payload,
		qos:      ReadingQoS,
		retained: ReadingRetained,
	})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) so shutdown events are delivered
	return c.publish(bufferedMsg{
		topic:    TopicSystem,
		payload:  payload,
		qos:      1,
		retained: event.Retained,
	})
}

// PublishRaw sends payload to topic at QoS 1, buffering it like any other
// message while disconnected.
func (c *RealClient) PublishRaw(topic string, payload []byte, retained bool) error {
	return c.publish(bufferedMsg{
		topic:    topic,
		payload:  payload,
		qos:      1,
		retained: retained,
	})
}

func (c *RealClient) publish(m bufferedMsg) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.client.IsConnectionOpen() {
		c.buffer.push(m)
		n := c.buffer.len()
		c.mu.Unlock()
		c.logger.Debug("mqtt: offline, message buffered", "topic", m.topic, "buffered", n)
		return ErrBuffered
	}
	c.mu.Unlock()

	return c.send(m)
}

func (c *RealClient) send(m bufferedMsg) error {
	token := c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Inbound returns how many subscription messages wait for their handler.
func (c *RealClient) Inbound() int {
	return c.inbox.pending()
}

// Buffered returns how many messages wait for the connection to return.
func (c *RealClient) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.len()
}

// IsConnected reports whether the connection to the broker is up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker. Buffered messages are dropped.
func (c *RealClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dropped := c.buffer.len()
	c.mu.Unlock()

	c.inbox.close()
	if dropped > 0 {
		c.logger.Warn("mqtt: closing with buffered messages", "dropped", dropped)
	}
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
