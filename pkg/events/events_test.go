package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/pkg/config"
)

type natsConnStub struct {
	subject string
	data    []byte
	err     error
	closed  bool
}

func (s *natsConnStub) Publish(subject string, data []byte) error {
	s.subject = subject
	s.data = data
	return s.err
}

func (s *natsConnStub) Close() { s.closed = true }

func TestNATSPublisherPublishesJSON(t *testing.T) {
	conn := &natsConnStub{}
	p := &NATSPublisher{conn: conn, subject: "roster.events", logger: zap.NewNop()}

	err := p.Publish(context.Background(), Event{Type: TypeRosterSubmitted, Key: "ABCDE12345", Data: map[string]int{"known": 3}})
	require.NoError(t, err)
	assert.Equal(t, "roster.events", conn.subject)

	var decoded Event
	require.NoError(t, json.Unmarshal(conn.data, &decoded))
	assert.Equal(t, TypeRosterSubmitted, decoded.Type)
	assert.False(t, decoded.OccurredAt.IsZero())

	require.NoError(t, p.Close())
	assert.True(t, conn.closed)
}

func TestNATSPublisherError(t *testing.T) {
	p := &NATSPublisher{conn: &natsConnStub{err: errors.New("no responders")}, subject: "s", logger: zap.NewNop()}
	err := p.Publish(context.Background(), Event{Type: TypeMediaExported})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "media.exported")
}

func TestKafkaPublisherSendsKeyedMessage(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var decoded Event
		if err := json.Unmarshal(val, &decoded); err != nil {
			return err
		}
		if decoded.Type != TypeRosterReleased {
			return errors.New("unexpected type " + decoded.Type)
		}
		return nil
	})

	p := newKafkaPublisher(producer, "roster-events", zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), Event{Type: TypeRosterReleased, Key: "k"}))
	require.NoError(t, p.Close())
}

func TestKafkaPublisherFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newKafkaPublisher(producer, "roster-events", zap.NewNop())
	err := p.Publish(context.Background(), Event{Type: TypeRosterSubmitted})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestNewSelectsNoop(t *testing.T) {
	p, err := New(config.EventsConfig{Driver: config.EventsNone}, nil)
	require.NoError(t, err)
	assert.IsType(t, Noop{}, p)
	require.NoError(t, p.Publish(context.Background(), Event{}))

	_, err = New(config.EventsConfig{Driver: "carrier-pigeon"}, nil)
	require.Error(t, err)
}
