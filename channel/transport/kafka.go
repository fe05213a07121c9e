package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cfg"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/channel"
)

func init() {
	channel.RegisterTransport(string(cfg.TransportKafka), func(config cfg.ChannelConfiguration, clientID string) (channel.Transport, error) {
		return NewKafka(KafkaConfig{
			Brokers:  config.KafkaBrokers,
			Topic:    config.KafkaTopic,
			GroupID:  config.KafkaGroupID,
			ClientID: clientID,
		})
	})
}

// KafkaConfig holds configuration for the Kafka transport
type KafkaConfig struct {
	Brokers  []string // Kafka broker addresses
	Topic    string   // change event topic
	GroupID  string   // consumer group, one per client
	ClientID string   // key for control frames
}

// Kafka consumes change events from a topic and writes control frames to
// <topic>-control keyed by client id.
type Kafka struct {
	config KafkaConfig
}

// NewKafka validates config and creates a Kafka transport
func NewKafka(config KafkaConfig) (*Kafka, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka transport requires at least one broker address")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka transport requires a topic")
	}
	return &Kafka{config: config}, nil
}

func (k *Kafka) Name() string {
	return string(cfg.TransportKafka)
}

// Dial checks broker reachability, then opens a reader and a control writer.
// Readers connect lazily, so without the probe a dead cluster would only show
// up on the first Receive.
func (k *Kafka) Dial(ctx context.Context) (channel.Conn, error) {
	probe, err := kafka.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("kafka dial %s: %w", k.config.Brokers[0], err)
	}
	probe.Close()

	groupID := k.config.GroupID
	if groupID != "" && k.config.ClientID != "" {
		groupID = groupID + "-" + k.config.ClientID
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.config.Brokers,
		Topic:       k.config.Topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
	})
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(k.config.Brokers...),
		Topic:                  k.config.Topic + "-control",
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &kafkaConn{reader: reader, writer: writer, key: []byte(k.config.ClientID)}, nil
}

type kafkaConn struct {
	reader *kafka.Reader
	writer *kafka.Writer
	key    []byte
	closed atomic.Bool
}

func (c *kafkaConn) Receive(ctx context.Context) ([]byte, error) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) || c.closed.Load() {
			return nil, channel.ErrClosed
		}
		return nil, err
	}
	return msg.Value, nil
}

func (c *kafkaConn) Send(ctx context.Context, frame []byte) error {
	if c.closed.Load() {
		return channel.ErrClosed
	}
	return c.writer.WriteMessages(ctx, kafka.Message{Key: c.key, Value: frame})
}

func (c *kafkaConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(c.reader.Close(), c.writer.Close())
}
