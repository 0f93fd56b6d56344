package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mqtt-automations/internal/shared"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	qos                   = 1
	defaultReconnectDelay = 5 * time.Second
	publishTimeout        = 10 * time.Second
	disconnectQuiesce     = 250 // milliseconds
)

// MessageHandler receives the topic and payload of an inbound message.
type MessageHandler func(topic, payload string)

// Client is an MQTT connection that keeps its subscriptions across reconnects.
type Client struct {
	client paho.Client
	logger *log.Logger

	mu       sync.Mutex
	handlers map[string]MessageHandler
}

// NewClient creates a [Client] for the configured broker. It does not connect.
func NewClient(cfg shared.MQTTConfig, logger *log.Logger) *Client {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	c := &Client{
		logger:   shared.WithLogger(logger, "component", "mqtt"),
		handlers: make(map[string]MessageHandler),
	}
	c.client = paho.NewClient(c.options(cfg))
	return c
}

// options builds paho options that retry the initial connection and every reconnect on a
// fixed delay.
func (c *Client) options(cfg shared.MQTTConfig) *paho.ClientOptions {
	delay := cfg.ReconnectDelay.Duration
	if delay <= 0 {
		delay = defaultReconnectDelay
	}

	return paho.NewClientOptions().
		AddBroker(cfg.Broker()).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(delay).
		SetMaxReconnectInterval(delay).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.logger.Warn("connection lost", "error", err)
		}).
		SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
			c.logger.Info("reconnecting", "delay", delay)
		})
}

// Handle registers handler for topic. Handlers registered before [Client.Connect] are subscribed
// on every (re)connect.
func (c *Client) Handle(topic string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
}

func (c *Client) onConnect(client paho.Client) {
	c.logger.Info("connected to broker")

	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, handler := range c.handlers {
		token := client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
			handler(msg.Topic(), string(msg.Payload()))
		})
		// handlers must not block the paho router
		go func() {
			token.Wait()
			if err := token.Error(); err != nil {
				c.logger.Error("failed to subscribe", "topic", topic, "error", err)
				return
			}
			c.logger.Debug("subscribed", "topic", topic)
		}()
	}
}

// Connect connects to the broker, retrying until it succeeds or ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to broker: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether the connection to the broker is currently up.
func (c *Client) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Publish sends payload to topic at QoS 1 and waits for the broker to acknowledge it.
func (c *Client) Publish(topic, payload string) error {
	if !c.Connected() {
		return fmt.Errorf("%w: publish to %s", shared.ErrNotConnected, topic)
	}

	token := c.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Disconnect closes the connection after letting in-flight work settle.
func (c *Client) Disconnect() {
	c.client.Disconnect(disconnectQuiesce)
	c.logger.Info("disconnected from broker")
}
