package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"checkout-engine/internal/domain/model"
	"checkout-engine/internal/metrics"
	repo "checkout-engine/internal/repository"

	"github.com/segmentio/kafka-go"
)

const defaultBatchSize = 100

// OutboxRelay は未送信のoutboxをKafkaへ流し、送れたものから既送にする。
// 送信後にMarkSentが失敗すると再送される（at-least-once、受け手はevent_idで重複排除）
type OutboxRelay struct {
	outbox    repo.OutboxRepository
	writer    MessageWriter
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.RelayMetrics
	now       func() time.Time
}

func NewOutboxRelay(outbox repo.OutboxRepository, writer MessageWriter, interval time.Duration, logger *slog.Logger, m *metrics.RelayMetrics) *OutboxRelay {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxRelay{
		outbox:    outbox,
		writer:    writer,
		interval:  interval,
		batchSize: defaultBatchSize,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Run はctxが終わるまでポーリングする
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", slog.Duration("interval", r.interval))
	for {
		if _, err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("outbox flush failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Flush は1バッチ分を送る。送れた件数を返す
func (r *OutboxRelay) Flush(ctx context.Context) (int, error) {
	events, err := r.outbox.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, ev := range events {
		//順序を崩さないよう、失敗したらそこで止めて次回に回す
		if err := r.writer.WriteMessages(ctx, toMessage(ev)); err != nil {
			r.incFailure()
			return sent, err
		}
		if err := r.outbox.MarkSent(ctx, ev.ID, r.now()); err != nil {
			return sent, err
		}
		sent++
		r.incPublished()
		r.logger.Debug("outbox event published",
			slog.Int64("outbox_id", ev.ID),
			slog.String("event_id", ev.EventID),
			slog.String("topic", ev.Topic),
		)
	}
	return sent, nil
}

func toMessage(ev model.OutboxEvent) kafka.Message {
	return kafka.Message{
		Topic: ev.Topic,
		Key:   []byte(ev.Key),
		Value: []byte(ev.Payload),
		Time:  ev.CreatedAt.UTC(),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
}

func (r *OutboxRelay) incPublished() {
	if r.metrics != nil {
		r.metrics.Published.Inc()
	}
}

func (r *OutboxRelay) incFailure() {
	if r.metrics != nil {
		r.metrics.Failures.Inc()
	}
}
