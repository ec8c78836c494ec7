package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/tank-monitor/internal/pipeline"
)

// Options configures the real publisher.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	BufferSize  int
}

// RealPublisher publishes to an MQTT broker. While the connection is down,
// messages go into a ring buffer and are replayed in order on reconnect.
type RealPublisher struct {
	client         paho.Client
	topicTelemetry string
	topicSystem    string

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealPublisher creates a publisher connected to the given broker.
// paho reconnects on its own; initial connection failure is not fatal here
// because the buffer covers the gap.
func NewRealPublisher(opts Options) *RealPublisher {
	p := &RealPublisher{
		topicTelemetry: opts.TopicPrefix + "/telemetry",
		topicSystem:    opts.TopicPrefix + "/system",
		buffer:         newRingBuffer(opts.BufferSize),
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(p.onConnect)

	p.client = paho.NewClient(clientOpts)
	token := p.client.Connect()
	// Wait briefly; if the broker is down the buffer takes over.
	token.WaitTimeout(10 * time.Second)
	if err := token.Error(); err != nil {
		log.Printf("mqtt: initial connect: %v (buffering until reconnect)", err)
	}

	return p
}

// PublishTelemetry sends one snapshot at QoS 0, buffering if disconnected.
func (p *RealPublisher) PublishTelemetry(snap pipeline.Snapshot) error {
	payload, err := FormatTelemetryPayload(snap)
	if err != nil {
		return fmt.Errorf("format telemetry payload: %w", err)
	}
	return p.send(bufferedMsg{topic: p.topicTelemetry, payload: payload, qos: 0})
}

// PublishSystem sends a lifecycle event at QoS 1; delivery matters for
// shutdown events.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(bufferedMsg{topic: p.topicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	if !p.client.IsConnected() {
		p.mu.Lock()
		p.buffer.push(msg)
		n := p.buffer.size()
		p.mu.Unlock()
		return fmt.Errorf("not connected, buffered (%d pending)", n)
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout on %s", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// onConnect replays buffered messages in order.
func (p *RealPublisher) onConnect(client paho.Client) {
	p.mu.Lock()
	msgs, dropped := p.buffer.drain()
	p.mu.Unlock()

	if dropped > 0 {
		log.Printf("mqtt: reconnected, %d buffered messages were dropped to overflow", dropped)
	}
	if len(msgs) == 0 {
		return
	}
	log.Printf("mqtt: reconnected, replaying %d buffered messages", len(msgs))
	for _, msg := range msgs {
		token := client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(5 * time.Second) {
			log.Printf("mqtt: replay timeout on %s", msg.topic)
		}
	}
}

// IsConnected reports the broker connection state.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // milliseconds to flush in-flight messages
	return nil
}
