// Package mqtt maintains the broker session and converts bridge events into
// topic+payload messages.
package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/srg/blemon/internal/backoff"
	"github.com/srg/blemon/internal/config"
	"github.com/srg/blemon/internal/events"
)

// ScanRequest is a broker-side request to the bridge, received on the
// <prefix>/scan/arrive and <prefix>/scan/depart topics.
type ScanRequest int

const (
	// ScanArrive asks for an immediate arrival check.
	ScanArrive ScanRequest = iota
	// ScanDepart asks for an immediate departure check.
	ScanDepart
)

func (r ScanRequest) String() string {
	if r == ScanDepart {
		return "depart"
	}
	return "arrive"
}

// MessageHandler is the callback signature for received messages.
// Handlers are invoked in separate goroutines by the paho library and must
// not block for extended periods.
type MessageHandler func(topic string, payload []byte) error

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Publisher maintains the MQTT session for the bridge.
//
// All methods are safe for concurrent use. Subscriptions and the bridge's
// online status are automatically restored on reconnection; reconnection
// itself is delegated to paho's retry loop, bounded by the backoff policy
// passed at construction.
type Publisher struct {
	cfg    config.MQTT
	topics Topics
	logger *logrus.Logger

	client  pahomqtt.Client
	options *pahomqtt.ClientOptions

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	// scanReqs surfaces broker-side scan requests to the bridge. Bounded;
	// requests are dropped when the bridge is not keeping up.
	scanReqs chan ScanRequest

	published uint64
	pubMu     sync.Mutex
}

// NewPublisher creates a publisher for the given broker configuration.
// Connect must be called before publishing.
func NewPublisher(cfg config.MQTT, policy backoff.Policy, logger *logrus.Logger) *Publisher {
	if logger == nil {
		logger = logrus.New()
	}

	topics := Topics{Prefix: cfg.TopicPrefix}

	p := &Publisher{
		cfg:           cfg,
		topics:        topics,
		logger:        logger,
		subscriptions: make(map[string]subscription),
		scanReqs:      make(chan ScanRequest, 4),
	}
	p.options = buildClientOptions(cfg, policy, topics)

	p.options.SetOnConnectHandler(func(_ pahomqtt.Client) {
		p.handleConnect()
	})
	p.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.handleDisconnect(err)
	})

	return p
}

// Connect establishes the broker session and the bridge's scan-request
// subscriptions. Auth rejections are fatal (ErrAuthRejected); anything else
// is wrapped in ErrConnectionFailed.
func (p *Publisher) Connect() error {
	p.client = pahomqtt.NewClient(p.options)

	token := p.client.Connect()
	if !token.WaitTimeout(p.cfg.ConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, p.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		if isAuthError(err) {
			return fmt.Errorf("%w: %v", ErrAuthRejected, err)
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have fired yet;
	// mark connected here so IsConnected is true on return.
	p.connMu.Lock()
	p.connected = true
	p.connMu.Unlock()

	if err := p.Subscribe(p.topics.ScanArrive(), 0, p.scanRequestHandler(ScanArrive)); err != nil {
		return err
	}
	if err := p.Subscribe(p.topics.ScanDepart(), 0, p.scanRequestHandler(ScanDepart)); err != nil {
		return err
	}

	return nil
}

// PublishEvent publishes a bridge event to its derived topic.
//
// Presence changes go out retained at QoS 1 and wait for the ack; telemetry
// uses the configured QoS (default 0) and is fire-and-forget at QoS 0.
// Returns ErrNotConnected when the session is down so the caller's buffering
// policy applies.
func (p *Publisher) PublishEvent(ev events.Event) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	payload, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("%w: encoding event for %s: %w", ErrPublishFailed, ev.Address, err)
	}

	topic := p.topics.ForEvent(ev)

	qos := presenceQoS
	retained := true
	if ev.Kind == events.Telemetry {
		qos = p.cfg.TelemetryQoS
		retained = false
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if qos > 0 {
		if !token.WaitTimeout(defaultPublishTimeout) {
			return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}
	}

	p.pubMu.Lock()
	p.published++
	p.pubMu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"topic": topic,
		"kind":  ev.Kind.String(),
		"qos":   qos,
	}).Debug("Published bridge event")

	return nil
}

// Published returns the number of successfully published events.
func (p *Publisher) Published() uint64 {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	return p.published
}

// Subscribe registers a handler and tracks the subscription so it survives
// reconnects.
func (p *Publisher) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	p.subMu.Lock()
	p.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	p.subMu.Unlock()

	token := p.client.Subscribe(topic, qos, p.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout subscribing to %s", ErrSubscribeFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// ScanRequests returns the channel of broker-side scan requests.
func (p *Publisher) ScanRequests() <-chan ScanRequest {
	return p.scanReqs
}

// IsConnected returns the current session state.
func (p *Publisher) IsConnected() bool {
	p.connMu.RLock()
	defer p.connMu.RUnlock()
	return p.connected && p.client != nil && p.client.IsConnected()
}

// Close publishes a graceful offline status and disconnects with a quiesce
// period for pending operations.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}

	if p.IsConnected() {
		token := p.client.Publish(p.topics.BridgeStatus(), presenceQoS, true,
			buildStatusPayload(p.cfg.ClientID, "offline"))
		token.WaitTimeout(defaultPublishTimeout)
	}

	p.client.Disconnect(defaultDisconnectQuiesce)

	p.connMu.Lock()
	p.connected = false
	p.connMu.Unlock()

	return nil
}

// handleConnect restores state on every (re)connect.
func (p *Publisher) handleConnect() {
	p.connMu.Lock()
	p.connected = true
	p.connMu.Unlock()

	p.restoreSubscriptions()

	token := p.client.Publish(p.topics.BridgeStatus(), presenceQoS, true,
		buildStatusPayload(p.cfg.ClientID, "online"))
	token.WaitTimeout(defaultPublishTimeout)

	p.logger.WithField("broker", fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)).
		Info("MQTT session established")
}

func (p *Publisher) handleDisconnect(err error) {
	p.connMu.Lock()
	p.connected = false
	p.connMu.Unlock()

	p.logger.WithError(err).Warn("MQTT session lost, reconnecting")
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (p *Publisher) restoreSubscriptions() {
	p.subMu.RLock()
	defer p.subMu.RUnlock()

	for _, sub := range p.subscriptions {
		// Re-subscribe (errors here are resolved by the next reconnect)
		p.client.Subscribe(sub.topic, sub.qos, p.wrapHandler(sub.handler))
	}
}

// scanRequestHandler forwards a scan topic message to the bridge.
func (p *Publisher) scanRequestHandler(req ScanRequest) MessageHandler {
	return func(topic string, _ []byte) error {
		select {
		case p.scanReqs <- req:
		default:
			p.logger.WithField("topic", topic).Warn("Scan request dropped, bridge busy")
		}
		return nil
	}
}

// wrapHandler wraps a MessageHandler with panic recovery and error logging.
func (p *Publisher) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.WithFields(logrus.Fields{
					"topic": msg.Topic(),
					"panic": r,
				}).Error("MQTT handler panic recovered")
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			p.logger.WithError(err).WithField("topic", msg.Topic()).
				Warn("MQTT handler returned error")
		}
	}
}
