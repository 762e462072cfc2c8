package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
	"appointly/backend/internal/telemetry"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers   []string
	PollEvery time.Duration
	BatchSize int
}

// Publisher relays committed appointment events from the outbox table to
// Kafka. Each event type is its own topic and the business id is the message
// key, so events of one business stay ordered within a partition.
type Publisher struct {
	outbox    store.Outbox
	log       *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int

	newWriter func(brokers []string) messageWriter
}

func NewPublisher(outbox store.Outbox, log *slog.Logger, cfg Config) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		outbox:    outbox,
		log:       log.With(slog.String("component", "outbox")),
		brokers:   cfg.Brokers,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		newWriter: func(brokers []string) messageWriter {
			return &kafka.Writer{
				Addr:                   kafka.TCP(brokers...),
				Balancer:               &kafka.Hash{},
				AllowAutoTopicCreation: true,
			}
		},
	}
}

func (p *Publisher) Enabled() bool {
	return len(p.brokers) > 0
}

// Run polls until ctx is canceled. It returns immediately when no brokers are
// configured.
func (p *Publisher) Run(ctx context.Context) {
	if !p.Enabled() {
		p.log.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := p.newWriter(p.brokers)
	defer func() {
		if err := writer.Close(); err != nil {
			p.log.Error("close kafka writer", slog.Any("err", err))
		}
	}()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				n, err := p.PublishBatch(ctx, writer)
				if err != nil {
					if ctx.Err() == nil {
						p.log.Error("outbox publish failed", slog.Any("err", err))
					}
					break
				}
				if n < p.batchSize {
					break
				}
			}
		}
	}
}

// PublishBatch publishes at most one batch and reports how many events were
// marked published.
func (p *Publisher) PublishBatch(ctx context.Context, writer messageWriter) (int, error) {
	n, err := p.outbox.PublishPending(ctx, p.batchSize, func(ctx context.Context, events []domain.OutboxEvent) error {
		msgs := make([]kafka.Message, 0, len(events))
		for _, e := range events {
			msgs = append(msgs, message(ctx, e))
		}
		return writer.WriteMessages(ctx, msgs...)
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.log.Debug("outbox batch published", slog.Int("count", n))
	}
	return n, nil
}

func message(ctx context.Context, e domain.OutboxEvent) kafka.Message {
	msgCtx := telemetry.ContextWithTraceContext(ctx, e.Traceparent, e.Tracestate)
	msg := kafka.Message{
		Topic: e.EventType,
		Key:   []byte(e.AggregateID),
		Value: []byte(e.Payload),
		Headers: []kafka.Header{
			{Key: headerEventID, Value: []byte(e.EventID.String())},
			{Key: headerEventType, Value: []byte(e.EventType)},
		},
	}
	msg.Headers = injectTraceHeaders(msgCtx, msg.Headers)
	return msg
}
