// Package mqtt publishes connectivity mode changes to an MQTT broker
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/observability"
	"github.com/hsdfat8/fieldops/internal/simulator"
)

const (
	DefaultPublishTimeout = 3 * time.Second
	DefaultConnectTimeout = 10 * time.Second

	disconnectQuiesceMs = 250
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Config holds broker and topic settings
type Config struct {
	Broker         string
	ClientID       string // empty generates "fieldops-<uuid>"
	Username       string
	Password       string
	Topic          string
	QoS            byte
	Retained       bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// ModeMessage is the payload published on every mode change
type ModeMessage struct {
	ConnectivityMode string    `json:"connectivity_mode"`
	PowerMode        string    `json:"power_mode"`
	Timestamp        time.Time `json:"timestamp"`
}

// publishClient is the subset of paho.Client the publisher uses
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// connectClient is the subset of paho.Client used while dialing
type connectClient interface {
	publishClient
	Connect() paho.Token
}

var newClient = func(opts *paho.ClientOptions) connectClient {
	return paho.NewClient(opts)
}

// Publisher forwards mode changes to a topic. It implements
// ports.ModePublisher, simulator.ModeListener and simulator.PowerListener.
type Publisher struct {
	client   publishClient
	topic    string
	qos      byte
	retained bool
	timeout  time.Duration
	now      func() time.Time
	logger   observability.Logger
}

var (
	_ ports.ModePublisher     = (*Publisher)(nil)
	_ simulator.ModeListener  = (*Publisher)(nil)
	_ simulator.PowerListener = (*Publisher)(nil)
)

// NewPublisher wraps an already connected client
func NewPublisher(client publishClient, cfg Config) *Publisher {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Publisher{
		client:   client,
		topic:    cfg.Topic,
		qos:      cfg.QoS,
		retained: cfg.Retained,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   observability.New("mqtt-publisher", ""),
	}
}

// Connect dials the broker and returns a publisher bound to cfg.Topic
func Connect(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "fieldops-" + uuid.New().String()
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	log := observability.New("mqtt-client", "")
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOnConnectHandler(func(paho.Client) {
		log.Infow("MQTT connection established", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warnw("MQTT connection lost", "broker", cfg.Broker, "error", err)
	})

	client := newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(disconnectQuiesceMs)
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timed out after %s", cfg.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(disconnectQuiesceMs)
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	log.Infow("Connected to MQTT broker", "broker", cfg.Broker, "client_id", clientID)
	return NewPublisher(client, cfg), nil
}

// PublishMode sends one ModeMessage and waits for the broker
// acknowledgement, bounded by ctx and the publish timeout
func (p *Publisher) PublishMode(ctx context.Context, mode, powerMode string) error {
	payload, err := json.Marshal(ModeMessage{
		ConnectivityMode: mode,
		PowerMode:        powerMode,
		Timestamp:        p.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mode message: %w", err)
	}

	wait := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < wait {
			wait = until
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	token := p.client.Publish(p.topic, p.qos, p.retained, payload)
	if !token.WaitTimeout(wait) {
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}

	p.logger.Debugw("Published connectivity mode", "topic", p.topic, "mode", mode, "power_mode", powerMode)
	return nil
}

// OnModeChange publishes the new mode. Failures are logged and never
// propagate to the simulator.
func (p *Publisher) OnModeChange(mode simulator.Mode, power simulator.PowerMode) {
	if err := p.PublishMode(context.Background(), string(mode), string(power)); err != nil {
		p.logger.Warnw("Failed to publish connectivity mode", "topic", p.topic, "mode", mode, "error", err)
	}
}

// OnPowerModeChange publishes the new power mode alongside the current
// connectivity mode
func (p *Publisher) OnPowerModeChange(mode simulator.Mode, power simulator.PowerMode) {
	if err := p.PublishMode(context.Background(), string(mode), string(power)); err != nil {
		p.logger.Warnw("Failed to publish power mode", "topic", p.topic, "power_mode", power, "error", err)
	}
}

// Close disconnects from the broker
func (p *Publisher) Close() error {
	p.client.Disconnect(disconnectQuiesceMs)
	p.logger.Infow("Disconnected from MQTT broker")
	return nil
}
