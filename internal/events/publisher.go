// Package events publishes integration events for the rest of the CRM.
// Only lead.qualified exists today; the dashboard consumes it to open a
// lead card before the human agent picks up the conversation.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
)

const routingKeyLeadQualified = "lead.qualified"

// LeadEvent is the wire payload of lead.qualified.
type LeadEvent struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone"`
	Platform    domain.Platform `json:"platform"`
	Summary     string          `json:"summary"`
	QualifiedAt time.Time       `json:"qualified_at"`
}

// Publisher emits events on a topic exchange.
type Publisher struct {
	conn     *amqp091.Connection
	exchange string
	logger   *slog.Logger
}

// New connects to the broker and declares the exchange.
func New(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, exchange: exchange, logger: logger}, nil
}

// PublishLead emits one lead.qualified event. Channels are cheap and not
// goroutine-safe, so each publish opens its own.
func (p *Publisher) PublishLead(ctx context.Context, name, phone string, platform domain.Platform, summary string) error {
	evt := LeadEvent{
		ID:          uuid.NewString(),
		Name:        name,
		Phone:       phone,
		Platform:    platform,
		Summary:     summary,
		QualifiedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, p.exchange, routingKeyLeadQualified, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     evt.ID,
			CorrelationId: uuid.NewString(),
			Timestamp:     evt.QualifiedAt,
			Body:          body,
		},
	)
	if err != nil {
		return err
	}
	p.logger.Debug("lead event published", "id", evt.ID, "phone", phone)
	return nil
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}
