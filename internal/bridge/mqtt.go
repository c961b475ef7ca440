package bridge

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Conn is the broker connection surface the bridge consumes.
type Conn interface {
	Subscribe(topic string, cb func(payload []byte)) error
	Publish(topic string, retain bool, payload []byte) error
	Close()
}

// ConnOptions configures the broker session. AvailabilityTopic, when set,
// gets a retained "offline" last-will and a retained "online" published on
// every successful (re)connect.
type ConnOptions struct {
	URL               string
	Username          string
	Password          string
	ClientID          string
	AvailabilityTopic string
}

type mqttConn struct {
	client mqtt.Client
	log    zerolog.Logger

	mu   sync.Mutex
	subs map[string]func([]byte)
}

// Dial connects to the broker. Reconnects are automatic; subscriptions are
// replayed on every (re)connect before the OnConnect hook runs.
func Dial(opts ConnOptions, log zerolog.Logger) (Conn, error) {
	parsed, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid mqtt url %q: %w", opts.URL, err)
	}
	scheme := parsed.Scheme
	switch scheme {
	case "mqtt", "":
		scheme = "tcp"
	case "mqtts":
		scheme = "ssl"
	case "tcp", "ssl", "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported mqtt scheme %q", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("invalid mqtt url %q", opts.URL)
	}
	port := parsed.Port()
	if port == "" {
		port = "1883"
		if scheme == "ssl" {
			port = "8883"
		}
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(fmt.Sprintf("%s://%s:%s", scheme, parsed.Hostname(), port))
	if scheme == "ssl" {
		co.SetTLSConfig(&tls.Config{})
	}
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	clientID := opts.ClientID
	if clientID == "" {
		clientID = randomClientID()
	}
	co.SetClientID(clientID)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectTimeout(10 * time.Second)
	if opts.AvailabilityTopic != "" {
		co.SetWill(opts.AvailabilityTopic, "offline", 0, true)
	}

	c := &mqttConn{
		log:  log.With().Str("component", "mqtt").Logger(),
		subs: make(map[string]func([]byte)),
	}
	co.SetDefaultPublishHandler(c.dispatch)
	co.OnConnect = func(client mqtt.Client) {
		c.log.Info().Msg("broker connected")
		c.resubscribeAll()
		if opts.AvailabilityTopic != "" {
			client.Publish(opts.AvailabilityTopic, 0, true, []byte("online"))
		}
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.log.Warn().Err(err).Msg("broker connection lost")
	}

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	c.client = client
	return c, nil
}

func (c *mqttConn) Subscribe(topic string, cb func([]byte)) error {
	c.mu.Lock()
	c.subs[topic] = cb
	c.mu.Unlock()

	if token := c.client.Subscribe(topic, 0, nil); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *mqttConn) Publish(topic string, retain bool, payload []byte) error {
	if token := c.client.Publish(topic, 0, retain, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *mqttConn) Close() {
	c.client.Disconnect(250)
}

func (c *mqttConn) dispatch(_ mqtt.Client, msg mqtt.Message) {
	c.mu.Lock()
	cb := c.subs[msg.Topic()]
	c.mu.Unlock()
	if cb != nil {
		cb(msg.Payload())
	}
}

func (c *mqttConn) resubscribeAll() {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	for _, topic := range topics {
		_ = c.client.Subscribe(topic, 0, nil).Wait()
	}
}

func randomClientID() string {
	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)
	return "godaikin-" + base64.RawURLEncoding.EncodeToString(nonce)
}
