package push

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/eotlabs/eot-cloud-core/internal/infrastructure/config"
)

// TokenProvider supplies the bearer token embedded in the MQTT connect
// username. Satisfied by *auth.Manager.
type TokenProvider interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Event is one raw inbound push message. Payload parsing happens on the
// consumer's goroutine, not the transport callback.
type Event struct {
	Topic   string
	Payload []byte
}

const (
	// alpnProtocol is required by AWS IoT to serve MQTT on port 443.
	alpnProtocol = "mqtt"

	keepAlive      = 60 * time.Second
	connectWait    = 30 * time.Second
	publishWait    = 10 * time.Second
	tokenFetchWait = 15 * time.Second
	disconnectWait = 250 // milliseconds, paho's unit
)

// Client maintains the AWS IoT MQTT session used for push updates and
// device commands.
//
// The broker authenticates via a custom authorizer that reads a bearer
// token out of the connect username. Tokens expire, so the username is
// re-derived through the credentials provider on every connection
// attempt rather than baked into the options once.
//
// Inbound messages are handed to the consumer through a buffered channel.
// The transport callback never blocks: when the buffer is full the event
// is dropped and the drop hook fires. A dropped delta is corrected by the
// next poll cycle.
type Client struct {
	cfg     config.MQTTConfig
	user    string
	entryID string
	tokens  TokenProvider
	logger  Logger

	events chan Event
	onDrop func()

	mu      sync.Mutex
	client  mqtt.Client
	started bool
}

// NewClient creates a push client for the given account.
//
// Parameters:
//   - cfg: Broker endpoint, QoS, and reconnect settings
//   - user: Account identity segment used in every topic
//   - entryID: Per-installation suffix for the connect username and client id
//   - eventBuffer: Capacity of the inbound event channel
//   - tokens: Bearer token source, consulted on every (re)connect
//
// Returns:
//   - *Client: Client ready to Start; no I/O yet
func NewClient(cfg config.MQTTConfig, user, entryID string, eventBuffer int, tokens TokenProvider) *Client {
	return &Client{
		cfg:     cfg,
		user:    user,
		entryID: entryID,
		tokens:  tokens,
		logger:  noopLogger{},
		events:  make(chan Event, eventBuffer),
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// SetOnDrop registers a hook invoked whenever an inbound event is dropped
// because the buffer is full.
func (c *Client) SetOnDrop(fn func()) {
	c.onDrop = fn
}

// Events returns the inbound push event channel. The channel is never
// closed; consumers stop reading when their context ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Start connects to the broker and subscribes to the account's update
// topic.
//
// Broker unavailability is not a startup failure: auto-reconnect keeps
// trying in the background and polling covers the gap, so Start only
// fails on local problems (bad CA bundle, double start).
//
// Parameters:
//   - ctx: Bounds the initial connection wait
//
// Returns:
//   - error: ErrAlreadyStarted, ErrCAFile, or nil
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	opts, err := c.clientOptions()
	if err != nil {
		return err
	}

	c.client = mqtt.NewClient(opts)
	c.started = true

	token := c.client.Connect()
	if !token.WaitTimeout(connectWait) || token.Error() != nil {
		// Reconnect logic owns it from here.
		c.logger.Warn("broker not reachable yet, reconnecting in background",
			"host", c.cfg.Broker.Host, "error", token.Error())
	}
	return ctx.Err()
}

// Stop disconnects from the broker. Safe to call without a prior Start.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	c.client.Disconnect(disconnectWait)
	c.started = false
	c.logger.Info("push client stopped")
}

// Publish sends a payload to a topic and waits for broker confirmation at
// the configured QoS.
//
// Publishing is best-effort: a disconnected session or timeout yields
// false, never an error, and the caller decides whether optimistic state
// still applies.
//
// Returns:
//   - bool: true when the broker confirmed the publish
func (c *Client) Publish(topic string, payload []byte) bool {
	c.mu.Lock()
	client := c.client
	started := c.started
	c.mu.Unlock()

	if !started || client == nil || !client.IsConnectionOpen() {
		c.logger.Warn("publish skipped, not connected", "topic", topic)
		return false
	}

	token := client.Publish(topic, byte(c.cfg.QoS), false, payload)
	if !token.WaitTimeout(publishWait) {
		c.logger.Warn("publish confirmation timed out", "topic", topic)
		return false
	}
	if err := token.Error(); err != nil {
		c.logger.Warn("publish failed", "topic", topic, "error", err)
		return false
	}
	return true
}

// clientOptions assembles the paho options for the AWS IoT session.
func (c *Client) clientOptions() (*mqtt.ClientOptions, error) {
	tlsCfg, err := c.tlsConfig()
	if err != nil {
		return nil, err
	}

	broker := fmt.Sprintf("ssl://%s:%d", c.cfg.Broker.Host, c.cfg.Broker.Port)
	clientID := fmt.Sprintf("%s-%s", c.cfg.Broker.ClientIDPrefix, c.entryID)

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetTLSConfig(tlsCfg).
		SetKeepAlive(keepAlive).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(c.cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(c.cfg.Reconnect.MaxDelay) * time.Second)

	// Tokens expire between reconnects; derive fresh credentials every
	// connection attempt instead of fixing them in the options.
	opts.SetCredentialsProvider(func() (string, string) {
		ctx, cancel := context.WithTimeout(context.Background(), tokenFetchWait)
		defer cancel()

		token, err := c.tokens.GetAccessToken(ctx)
		if err != nil {
			c.logger.Error("token fetch for mqtt connect failed", "error", err)
			return "", ""
		}
		return connectUsername(c.user, c.entryID, c.cfg.Broker.AuthorizerName, token), ""
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		topic := UpdateResponseTopic(c.user)
		token := client.Subscribe(topic, byte(c.cfg.QoS), c.handleMessage)
		if !token.WaitTimeout(connectWait) || token.Error() != nil {
			c.logger.Error("subscribe failed", "topic", topic, "error", token.Error())
			return
		}
		c.logger.Info("push connected", "topic", topic)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("push connection lost", "error", err)
	})

	return opts, nil
}

// tlsConfig builds the ALPN TLS configuration AWS IoT requires on 443.
func (c *Client) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		NextProtos: []string{alpnProtocol},
		MinVersion: tls.VersionTLS12,
	}

	if c.cfg.Broker.CAFile != "" {
		pem, err := os.ReadFile(c.cfg.Broker.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates in %s", ErrCAFile, c.cfg.Broker.CAFile)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// handleMessage runs on paho's callback goroutine. It copies the payload
// into an Event and hands it off without blocking.
func (c *Client) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	ev := Event{Topic: msg.Topic(), Payload: payload}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("push event dropped, buffer full", "topic", msg.Topic())
		if c.onDrop != nil {
			c.onDrop()
		}
	}
}
