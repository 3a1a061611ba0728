package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"bizflow/internal/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	LeadCreated           = "lead.created"
	NewsletterSubscribed  = "newsletter.subscribed"
	SubmissionCreated     = "submission.created"
	FormPublished         = "form.published"
	BlogPostPublished     = "blog.post.published"
	CaseStudyPublished    = "case_study.published"
	BusinessAssessmentNew = "business_assessment.created"
)

type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewEvent(eventType string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (e *Event) Validate() error {
	if e.ID == "" {
		return errors.New("event id is empty")
	}
	if len(e.Payload) == 0 {
		return errors.New("payload is empty")
	}
	if e.Type == "" {
		return errors.New("type is empty")
	}
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// AMQPPublisher publishes JSON events to a topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	channel  *amqp.Channel
	exchange string
	logger   *logger.Logger
}

func NewAMQPPublisher(conn *amqp.Connection, exchange string, log *logger.Logger) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		log.Error("error opening channel", zap.Error(err))
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Error("error declaring exchange", zap.String("exchange", exchange), zap.Error(err))
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange, logger: log}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	event, err := NewEvent(routingKey, payload)
	if err != nil {
		p.logger.Error("error encode payload for publish", zap.String("type", routingKey), zap.Error(err))
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("error encode event for publish", zap.String("event_id", event.ID), zap.Error(err))
		return err
	}

	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		Body:         body,
	})
	p.mu.Unlock()
	if err != nil {
		p.logger.Error("error publishing event", zap.String("event_id", event.ID), zap.Error(err))
		return err
	}

	p.logger.Debug("published event", zap.String("event_id", event.ID), zap.String("type", routingKey))
	return nil
}

func (p *AMQPPublisher) IsHealthy() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.logger.Error("error closing channel", zap.Error(err))
	}
	return p.conn.Close()
}

// Emit publishes and only logs on failure; request paths never fail
// because the broker is down.
func Emit(ctx context.Context, pub Publisher, log *logger.Logger, routingKey string, payload any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, routingKey, payload); err != nil {
		log.Warn("event not published", zap.String("type", routingKey), zap.Error(err))
	}
}
