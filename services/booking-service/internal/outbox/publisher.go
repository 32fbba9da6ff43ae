package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/photobook/libs/db"
	"github.com/md-rashed-zaman/photobook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/photobook/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PublisherConfig struct {
	Brokers     string
	PollEvery   time.Duration
	BatchSize   int
	MaxAttempts int
}

// Publisher relays committed outbox rows to Kafka, one topic per event type.
type Publisher struct {
	pool   *db.Pool
	repo   *Repository
	logger *slog.Logger
	cfg    PublisherConfig
	tracer trace.Tracer
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Publisher{
		pool:   pool,
		repo:   repo,
		logger: logger,
		cfg:    cfg,
		tracer: otel.Tracer("photobook/outbox"),
	}
}

// Run polls until ctx is done. With no brokers configured events accumulate in the
// table and are relayed once a publisher with brokers starts.
func (p *Publisher) Run(ctx context.Context) {
	brokers := kafkax.SplitBrokers(p.cfg.Brokers)
	if len(brokers) == 0 {
		p.logger.Warn("outbox publisher disabled: no kafka brokers")
		return
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
	defer writer.Close()

	poll := time.NewTicker(p.cfg.PollEvery)
	defer poll.Stop()
	report := time.NewTicker(time.Minute)
	defer report.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-report.C:
			p.reportBacklog(ctx)
		case <-poll.C:
			// Drain full batches before waiting for the next tick.
			for {
				n, err := p.relay(ctx, writer)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						p.logger.Error("outbox relay failed", "err", err)
					}
					break
				}
				if n > 0 {
					p.logger.Debug("outbox relayed", "count", n)
				}
				if n < p.cfg.BatchSize {
					break
				}
			}
		}
	}
}

// relay claims one batch, writes it and records the outcome in the same transaction.
// A failed write still commits the attempt count and returns the write error.
func (p *Publisher) relay(ctx context.Context, writer MessageWriter) (int, error) {
	var sent int
	var writeErr error
	err := p.pool.WithTx(ctx, func(tx pgx.Tx) error {
		records, err := p.repo.Claim(ctx, tx, p.cfg.BatchSize, p.cfg.MaxAttempts)
		if err != nil || len(records) == 0 {
			return err
		}
		ids := make([]int64, len(records))
		msgs := make([]kafka.Message, len(records))
		for i, rec := range records {
			ids[i] = rec.ID
			msgs[i] = p.message(ctx, rec)
		}
		if writeErr = writer.WriteMessages(ctx, msgs...); writeErr != nil {
			return p.repo.MarkFailed(ctx, tx, ids, writeErr)
		}
		sent = len(records)
		return p.repo.MarkPublished(ctx, tx, ids)
	})
	if err != nil {
		return 0, err
	}
	return sent, writeErr
}

func (p *Publisher) reportBacklog(ctx context.Context) {
	pending, stuck, err := p.repo.Backlog(ctx, p.pool, p.cfg.MaxAttempts)
	switch {
	case err != nil:
		p.logger.Warn("outbox backlog query failed", "err", err)
	case stuck > 0:
		p.logger.Warn("outbox events gave up", "stuck", stuck, "pending", pending, "max_attempts", p.cfg.MaxAttempts)
	case pending > 0:
		p.logger.Info("outbox backlog", "pending", pending)
	}
}

// message continues the trace captured when the row was inserted.
func (p *Publisher) message(ctx context.Context, rec Record) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, rec.Traceparent, rec.Tracestate)
	msgCtx, span := p.tracer.Start(msgCtx, rec.EventType+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", rec.EventType),
			attribute.String("messaging.message.id", rec.EventID),
			attribute.Int("photobook.outbox.attempt", rec.Attempts+1),
		))
	defer span.End()

	headers := kafkax.MetaHeaders(kafkax.EventMeta{EventID: rec.EventID, EventType: rec.EventType})
	return kafka.Message{
		Topic:   rec.EventType,
		Key:     []byte(rec.AggregateID),
		Value:   rec.Payload,
		Headers: kafkax.InjectTraceHeaders(msgCtx, headers),
	}
}
