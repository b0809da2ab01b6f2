package kafka

import (
	"context"
	"encoding/json"
	"time"

	domoutbox "github.com/Parth18062003/E-Commerce-sub000/internal/domain/outbox"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// ErrNoTopic is returned when an event has no topic mapping.
var ErrNoTopic = errors.New("kafka: no topic for event")

// Publisher writes domain events as JSON to the topic mapped from the event
// name. Events implementing outbox.Keyed are keyed so one aggregate lands
// on one partition.
type Publisher struct {
	writer *kafka.Writer
	topics map[string]string
}

// NewPublisher builds a writer for brokers. topics maps event name -> topic.
func NewPublisher(brokers []string, topics map[string]string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		topics: topics,
	}
}

func (p *Publisher) Publish(ctx context.Context, e domoutbox.Event) error {
	msg, err := p.message(ctx, e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "kafka: write %s", e.EventName())
	}
	return nil
}

func (p *Publisher) message(ctx context.Context, e domoutbox.Event) (kafka.Message, error) {
	topic, ok := p.topics[e.EventName()]
	if !ok {
		return kafka.Message{}, errors.Wrap(ErrNoTopic, e.EventName())
	}
	body, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, errors.Wrapf(err, "kafka: encode %s", e.EventName())
	}

	headers := []kafka.Header{{Key: HeaderEventName, Value: []byte(e.EventName())}}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &headers})

	msg := kafka.Message{Topic: topic, Value: body, Headers: headers}
	if k, ok := e.(domoutbox.Keyed); ok {
		msg.Key = []byte(k.PartitionKey())
	}
	return msg, nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
