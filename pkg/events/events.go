// Package events publishes tracking outcomes for other services. Delivery is best effort.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/speedrun-hq/settlement-tracker/pkg/logger"
	"github.com/speedrun-hq/settlement-tracker/pkg/metrics"
)

// Event types, appended to the subject prefix
const (
	TypeTxHashKnown         = "intent.tx_hash_known"
	TypeIntentSettled       = "intent.settled"
	TypeIntentNotFound      = "intent.not_found"
	TypeIntentFailed        = "intent.failed"
	TypeWithdrawalCompleted = "withdrawal.completed"
	TypeWithdrawalFailed    = "withdrawal.failed"
	TypeQuoteSelected       = "quote.selected"

	version = "1.0.0"

	flushTimeout = 2 * time.Second
)

// Envelope wraps every published payload
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Version   string          `json:"version"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher emits tracking events
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
	Close()
}

// NopPublisher drops every event; used when NATS is not configured
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close()                                     {}

// msgPublisher is the subset of *nats.Conn used for publishing
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher publishes envelopes on core NATS subjects "<prefix>.<event type>"
type NATSPublisher struct {
	nc     *nats.Conn
	pub    msgPublisher
	prefix string
	source string
	logger logger.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// Connect dials NATS and returns a publisher
func Connect(url, prefix, source string, log logger.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name(source), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	p := newPublisher(nc, prefix, source, log)
	p.nc = nc
	return p, nil
}

func newPublisher(pub msgPublisher, prefix, source string, log logger.Logger) *NATSPublisher {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &NATSPublisher{
		pub:    pub,
		prefix: prefix,
		source: source,
		logger: log,
	}
}

// Subject returns the subject an event type is published on
func (p *NATSPublisher) Subject(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}

// Publish wraps payload in an Envelope and publishes it
func (p *NATSPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}

	subject := p.Subject(eventType)

	data, err := json.Marshal(payload)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(subject, "marshal_failed").Inc()
		return err
	}

	env := Envelope{
		ID:        uuid.New(),
		EventType: eventType,
		Version:   version,
		Source:    p.source,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(subject, "marshal_failed").Inc()
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    body,
		Header: nats.Header{
			"event_id":     []string{env.ID.String()},
			"event_type":   []string{eventType},
			"source":       []string{p.source},
			"content_type": []string{"application/json"},
		},
	}

	if err := p.pub.PublishMsg(msg); err != nil {
		metrics.EventsPublished.WithLabelValues(subject, "error").Inc()
		p.logger.Error("Failed to publish %s: %v", subject, err)
		return err
	}

	metrics.EventsPublished.WithLabelValues(subject, "ok").Inc()
	p.logger.Debug("Published %s (%s)", subject, env.ID)
	return nil
}

// Close flushes pending events and closes the NATS connection
func (p *NATSPublisher) Close() {
	if p.nc == nil || p.nc.IsClosed() {
		return
	}
	if err := p.nc.FlushTimeout(flushTimeout); err != nil {
		p.logger.Error("Failed to flush events before closing: %v", err)
	}
	p.nc.Close()
}
