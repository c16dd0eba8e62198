package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
)

// Producer escritor de mensajes (kafka-go Writer).
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer lector de un grupo de consumidores con commit explícito (kafka-go Reader).
type Consumer interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config conexión y tópicos.
type Config struct {
	Brokers     []string
	TaskTopic   string
	EventsTopic string
	GroupID     string
	Readers     int // lectores del grupo en este proceso
	ChunkSize   int
}

// NewWriter escritor con balanceo por hash de la clave: misma clave => misma partición.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
}

// NewReader lector del grupo de consumidores.
func NewReader(brokers []string, topic, groupID string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
}
