package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSPublisher publishes JSON events to one subject.
type NATSPublisher struct {
	conn    natsConn
	subject string
	logger  *zap.Logger
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, subject string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("roster-gateway"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info("nats publisher initialized", zap.String("url", url), zap.String("subject", subject))
	return &NATSPublisher{conn: nc, subject: subject, logger: logger}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(event)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s to nats: %w", event.Type, err)
	}
	p.logger.Debug("event sent to nats", zap.String("subject", p.subject), zap.String("type", event.Type))
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
