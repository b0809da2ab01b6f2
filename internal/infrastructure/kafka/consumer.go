package kafka

import (
	"context"
	"strconv"
	"sync"
	"time"

	domoutbox "github.com/Parth18062003/E-Commerce-sub000/internal/domain/outbox"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Dead-letter message headers.
const (
	HeaderDeadLetterTopic  = "x-original-topic"
	HeaderDeadLetterOffset = "x-original-offset"
	HeaderDeadLetterError  = "x-error"
)

// Decoder turns a message payload into the named event.
type Decoder func(eventName string, payload []byte) (domoutbox.Event, error)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Retry bounds redelivery of a message whose handler failed.
type Retry struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

var defaultRetry = Retry{Attempts: 5, Backoff: 200 * time.Millisecond, MaxBackoff: 5 * time.Second}

type ConsumerOption func(*Consumer)

// WithRetry overrides the handler retry policy. Zero fields keep defaults.
func WithRetry(r Retry) ConsumerOption {
	return func(c *Consumer) {
		if r.Attempts > 0 {
			c.retry.Attempts = r.Attempts
		}
		if r.Backoff > 0 {
			c.retry.Backoff = r.Backoff
		}
		if r.MaxBackoff > 0 {
			c.retry.MaxBackoff = r.MaxBackoff
		}
	}
}

// WithDeadLetterTopic parks messages that still fail after every retry, and
// undecodable ones, on topic.
func WithDeadLetterTopic(topic string) ConsumerOption {
	return func(c *Consumer) {
		if topic == "" {
			return
		}
		c.deadLetter = &kafka.Writer{
			Addr:                   kafka.TCP(c.brokers...),
			Topic:                  topic,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
	}
}

// Consumer reads one reader per subscribed topic and dispatches decoded
// events to the handlers registered for the event name.
//
// An offset is committed only once the handlers succeeded or the message was
// written to the dead-letter topic. Until then the message is retried and the
// partition does not advance.
type Consumer struct {
	brokers    []string
	groupID    string
	topics     map[string]string // event name -> topic
	decode     Decoder
	retry      Retry
	deadLetter messageWriter
	log        observability.Logger

	mu      sync.Mutex
	subs    map[string][]domoutbox.Handler
	readers []messageReader
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewConsumer(brokers []string, groupID string, topics map[string]string, decode Decoder, logger observability.Logger, opts ...ConsumerOption) *Consumer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	c := &Consumer{
		brokers: brokers,
		groupID: groupID,
		topics:  topics,
		decode:  decode,
		retry:   defaultRetry,
		log:     logger.With(observability.F("component", "kafka_consumer")),
		subs:    make(map[string][]domoutbox.Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Consumer) Subscribe(eventName string, h domoutbox.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[eventName] = append(c.subs[eventName], h)
}

// Start launches a reader for every subscribed event name. It returns an
// error when a subscribed event has no topic.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, c.cancel = context.WithCancel(ctx)
	for name := range c.subs {
		topic, ok := c.topics[name]
		if !ok {
			return errors.Wrap(ErrNoTopic, name)
		}
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.brokers,
			GroupID:  c.groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
		c.readers = append(c.readers, r)
		c.wg.Add(1)
		go c.run(ctx, r, topic, name)
	}
	return nil
}

func (c *Consumer) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	readers := c.readers
	c.mu.Unlock()

	c.wg.Wait()
	for _, r := range readers {
		if err := r.Close(); err != nil {
			c.log.Warn("kafka_reader_close_failed", observability.F("error", err))
		}
	}
	if c.deadLetter != nil {
		if err := c.deadLetter.Close(); err != nil {
			c.log.Warn("kafka_dead_letter_close_failed", observability.F("error", err))
		}
	}
}

func (c *Consumer) run(ctx context.Context, r messageReader, topic, eventName string) {
	defer c.wg.Done()
	log := c.log.With(observability.F("topic", topic), observability.F("event", eventName))
	log.Info("kafka_consumer_started")

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("kafka_consumer_stopped")
				return
			}
			log.Warn("kafka_fetch_failed", observability.F("error", err))
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		if !c.deliver(ctx, topic, eventName, msg) {
			// Shutting down mid-retry: leave the offset for the next owner.
			log.Info("kafka_consumer_stopped", observability.F("uncommitted_offset", msg.Offset))
			return
		}
		if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn("kafka_commit_failed", observability.F("error", err), observability.F("offset", msg.Offset))
		}
	}
}

// deliver runs the handlers for msg until they succeed or, after the retry
// budget, until the message is dead-lettered. It reports whether the offset
// may be committed; false means ctx ended first.
func (c *Consumer) deliver(ctx context.Context, topic, eventName string, msg kafka.Message) bool {
	log := c.log.With(
		observability.F("event", eventName),
		observability.F("partition", msg.Partition),
		observability.F("offset", msg.Offset),
	)

	e, err := c.decode(eventName, msg.Value)
	if err != nil {
		log.Error("kafka_message_undecodable", observability.F("error", err))
		return c.park(ctx, log, topic, msg, err)
	}

	backoff := c.retry.Backoff
	for attempt := 1; ; attempt++ {
		err := c.handle(ctx, eventName, e, msg.Headers)
		if err == nil {
			return true
		}
		log.Warn("event_handler_error",
			observability.F("error", err),
			observability.F("attempt", attempt),
		)
		if attempt >= c.retry.Attempts {
			return c.park(ctx, log, topic, msg, err)
		}
		if !sleep(ctx, backoff) {
			return false
		}
		backoff = min(2*backoff, c.retry.MaxBackoff)
	}
}

// park writes msg to the dead-letter topic, retrying at the maximum backoff
// until the write succeeds. Without a dead-letter topic the message is
// never committed past.
func (c *Consumer) park(ctx context.Context, log observability.Logger, topic string, msg kafka.Message, cause error) bool {
	if c.deadLetter == nil {
		log.Error("kafka_message_stuck", observability.F("error", cause))
		<-ctx.Done()
		return false
	}
	dl := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: HeaderDeadLetterTopic, Value: []byte(topic)},
			kafka.Header{Key: HeaderDeadLetterOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: HeaderDeadLetterError, Value: []byte(cause.Error())},
		),
	}
	for {
		err := c.deadLetter.WriteMessages(ctx, dl)
		if err == nil {
			log.Error("kafka_message_dead_lettered", observability.F("error", cause))
			return true
		}
		log.Error("kafka_dead_letter_failed", observability.F("error", err))
		if !sleep(ctx, c.retry.MaxBackoff) {
			return false
		}
	}
}

func (c *Consumer) handle(ctx context.Context, eventName string, e domoutbox.Event, headers []kafka.Header) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &headers})

	c.mu.Lock()
	handlers := append([]domoutbox.Handler(nil), c.subs[eventName]...)
	c.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
