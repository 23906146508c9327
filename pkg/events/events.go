// Package events fans roster and export outcomes out to a message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/pkg/config"
)

const (
	TypeRosterSubmitted = "roster.submitted"
	TypeRosterReleased  = "roster.released"
	TypeMediaExported   = "media.exported"
)

// Event is the envelope published to the broker.
type Event struct {
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// Publisher sends events to a broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// New selects a publisher from configuration.
func New(cfg config.EventsConfig, logger *zap.Logger) (Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case config.EventsNATS:
		return NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
	case config.EventsKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	case config.EventsNone, "":
		return Noop{}, nil
	}
	return nil, fmt.Errorf("unsupported events driver %q", cfg.Driver)
}

func encode(event Event) ([]byte, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	return data, nil
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
