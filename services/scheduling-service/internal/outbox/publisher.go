package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/tidyhome/scheduler/libs/db"
	"github.com/tidyhome/scheduler/libs/kafkax"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Observer receives relay outcomes; the metrics package implements it.
type Observer interface {
	OutboxPublished(n int)
	OutboxFailed()
}

type Publisher struct {
	db        db.TxBeginner
	repo      *Repository
	writer    MessageWriter
	logger    *slog.Logger
	observer  Observer
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
	Observer  Observer
}

func NewPublisher(conn db.TxBeginner, repo *Repository, writer MessageWriter, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		db:        conn,
		repo:      repo,
		writer:    writer,
		logger:    logger,
		observer:  cfg.Observer,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run relays until ctx is cancelled. A nil writer disables the relay and rows
// stay in the table until one is configured.
func (p *Publisher) Run(ctx context.Context) {
	if p.writer == nil {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error("outbox publish failed", "err", err)
				if p.observer != nil {
					p.observer.OutboxFailed()
				}
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox batch published", "count", n)
				if p.observer != nil {
					p.observer.OutboxPublished(n)
				}
			}
		}
	}
}

// PublishBatch locks one batch of unpublished rows, writes them to Kafka and
// marks them published. Rows stay locked until commit so replicas skip them.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	published := 0
	err := db.WithTx(ctx, p.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		msgs := make([]kafka.Message, 0, len(records))
		ids := make([]int64, 0, len(records))
		for _, r := range records {
			msgCtx := r.Trace.Resume(ctx)
			meta := kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType}
			msgs = append(msgs, kafka.Message{
				Topic:   r.EventType,
				Key:     []byte(r.AggregateID),
				Value:   r.Payload,
				Headers: kafkax.InjectTraceHeaders(msgCtx, meta.Headers()),
			})
			ids = append(ids, r.ID)
		}
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
		if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
			return err
		}
		published = len(records)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}
