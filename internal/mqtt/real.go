package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// publishWriteTimeout bounds how long Publish may block handing a message to
// the network. Publish is called with the engine lock held.
const publishWriteTimeout = 2 * time.Second

// PahoClient talks to a real broker. It reconnects on its own and restores
// subscriptions after every reconnect.
type PahoClient struct {
	client paho.Client

	mu    sync.Mutex
	subs  map[string]MessageHandler
	hooks []func()
}

func NewPahoClient(broker, clientID string) *PahoClient {
	c := &PahoClient{subs: map[string]MessageHandler{}}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWriteTimeout(publishWriteTimeout).
		SetOnConnectHandler(func(paho.Client) { c.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Str("broker", broker).Msg("MQTT connection lost")
		})

	c.client = paho.NewClient(opts)
	return c
}

// Connect waits up to timeout for the first connection. On timeout the
// client keeps retrying in the background.
func (c *PahoClient) Connect(timeout time.Duration) error {
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// Publish queues the message and checks the delivery token off the
// caller's goroutine.
func (c *PahoClient) Publish(topic string, retained bool, payload []byte) error {
	token := c.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			log.Warn().Str("topic", topic).Msg("MQTT publish timeout")
			return
		}
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
	return nil
}

func (c *PahoClient) Subscribe(filter string, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[filter] = handler
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.subscribe(filter, handler)
}

func (c *PahoClient) subscribe(filter string, handler MessageHandler) error {
	token := c.client.Subscribe(filter, 1, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	return token.Error()
}

func (c *PahoClient) OnConnect(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, f)
}

func (c *PahoClient) onConnect() {
	c.mu.Lock()
	subs := make(map[string]MessageHandler, len(c.subs))
	for k, v := range c.subs {
		subs[k] = v
	}
	hooks := append([]func(){}, c.hooks...)
	c.mu.Unlock()

	log.Info().Msg("MQTT connected")

	// Waiting on tokens inside the connect handler deadlocks paho.
	go func() {
		for filter, handler := range subs {
			if err := c.subscribe(filter, handler); err != nil {
				log.Warn().Err(err).Str("filter", filter).Msg("MQTT subscribe failed")
			}
		}
		for _, hook := range hooks {
			hook()
		}
	}()
}

// Close disconnects from the broker.
func (c *PahoClient) Close() error {
	c.client.Disconnect(1000)
	return nil
}
