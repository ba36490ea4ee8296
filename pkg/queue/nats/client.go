package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrMalformed marks a payload that can never be processed. Handlers wrap
// it so the message is terminated instead of redelivered.
var ErrMalformed = errors.New("malformed message")

// Config holds JetStream connection, stream and consumer settings
type Config struct {
	URL          string        `yaml:"url"` // empty disables publishing
	StreamName   string        `yaml:"stream" default:"augur"`
	Reconnects   int           `yaml:"reconnects" default:"3"`
	ReconnectGap time.Duration `yaml:"reconnect_gap" default:"1s"`
	MaxAge       time.Duration `yaml:"max_age" default:"168h"`
	AckWait      time.Duration `yaml:"ack_wait" default:"2m"`
	MaxDeliver   int           `yaml:"max_deliver" default:"3"`
}

// Client publishes finished runs and consumes them in the writer
type Client struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg Config
}

// NewClient dials the server and opens a JetStream context
func NewClient(cfg Config) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("augur"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.Reconnects),
		nats.ReconnectWait(cfg.ReconnectGap),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &Client{nc: nc, js: js, cfg: cfg}, nil
}

// CreateStream creates or updates the work-queue stream over subjects
func (c *Client) CreateStream(ctx context.Context, subjects []string) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       c.cfg.StreamName,
		Subjects:   subjects,
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		MaxAge:     c.cfg.MaxAge,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", c.cfg.StreamName, err)
	}
	return nil
}

// identified is implemented by messages that carry a deduplication key
type identified interface {
	MessageID() string
}

// PublishJSON encodes v and publishes it. Messages with a MessageID are
// deduplicated by the server, so republishing a run is harmless.
func (c *Client) PublishJSON(ctx context.Context, subject string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	var opts []jetstream.PublishOpt
	if m, ok := v.(identified); ok && m.MessageID() != "" {
		opts = append(opts, jetstream.WithMsgID(subject+":"+m.MessageID()))
	}
	if _, err := c.js.Publish(ctx, subject, data, opts...); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// MessageHandler processes one delivery
type MessageHandler func(msg jetstream.Msg) error

// Subscribe attaches a durable consumer to subject. A nil handler error
// acks, ErrMalformed terminates, anything else naks for redelivery.
func (c *Client) Subscribe(ctx context.Context, subject, durable string, handler MessageHandler) (jetstream.ConsumeContext, error) {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.StreamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
		MaxDeliver:    c.cfg.MaxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", durable, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		switch err := handler(msg); {
		case err == nil:
			_ = msg.Ack()
		case errors.Is(err, ErrMalformed):
			_ = msg.Term()
		default:
			_ = msg.Nak()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming %s: %w", subject, err)
	}
	return cc, nil
}

// Close drains pending publishes and closes the connection
func (c *Client) Close() {
	if c.nc == nil {
		return
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
}
