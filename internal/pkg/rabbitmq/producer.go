package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const dialTimeout = 10 * time.Second

// Publisher publishes JSON events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

// EventProducer holds one connection and one channel. The channel is
// reopened once when a declare or publish fails.
type EventProducer struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Fallback drops events. Used when the broker is not configured or is
// unreachable at startup.
type Fallback struct{}

func (Fallback) Publish(_ context.Context, exchange, routingKey string, _ interface{}) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"publish skipped\" exchange=%s routing_key=%s", exchange, routingKey)
	return nil
}

func (Fallback) Close() {}

// SanitizeURL trims quotes and stray prefixes from an AMQP URL taken from the
// environment and checks the scheme.
func SanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewEventProducer(amqpURL string) (*EventProducer, error) {
	cleanURL, err := SanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &EventProducer{conn: conn, channel: ch}, nil
}

// Publish declares the durable topic exchange and publishes body as JSON.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err = p.publish(ctx, exchange, routingKey, payload); err == nil {
		return nil
	}
	log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" exchange=%s routing_key=%s err=%v", exchange, routingKey, err)

	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return errors.Join(err, chErr)
	}
	if p.channel != nil {
		_ = p.channel.Close()
	}
	p.channel = ch
	return p.publish(ctx, exchange, routingKey, payload)
}

func (p *EventProducer) publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
}

func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// Connect returns a live producer, or Fallback when url is empty or the
// broker cannot be reached.
func Connect(amqpURL string, loggerf func(format string, args ...interface{})) Publisher {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	if strings.TrimSpace(amqpURL) == "" {
		loggerf("level=warn msg=RABBITMQ_URL not set, domain events are disabled")
		return Fallback{}
	}
	p, err := NewEventProducer(amqpURL)
	if err != nil {
		loggerf("level=warn msg=rabbitmq unavailable, domain events are disabled err=%v", err)
		return Fallback{}
	}
	return p
}
