package messaging

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// 送信先の抽象。*kafka.Writer が満たす
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// topicはメッセージごとに指定するのでWriterには持たせない
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}
