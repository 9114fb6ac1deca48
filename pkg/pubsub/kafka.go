package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
)

const (
	kafkaPollTimeout = 500 * time.Millisecond
	kafkaFlushMillis = 5000
	kafkaBuffer      = 64
)

// KafkaPubSub maps album channels onto one topic per stream, keyed by album,
// so events of a single album stay ordered within a partition.
type KafkaPubSub struct {
	cfg      KafkaConfig
	producer *kafka.Producer
	drained  chan struct{}

	mu   sync.Mutex
	subs map[string]*kafkaSub
}

type kafkaSub struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewKafkaPubSub creates the producer and makes sure the album topics exist.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	if cfg.Brokers == "" {
		return nil, errors.New("kafka brokers not configured")
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "all",
		"linger.ms":         5,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		cfg:      cfg,
		producer: p,
		drained:  make(chan struct{}),
		subs:     make(map[string]*kafkaSub),
	}
	go k.watchProducer()

	if err := k.createTopics(); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("kafka topic setup failed, relying on broker auto-create")
	}
	return k, nil
}

// createTopics creates the topic behind every known album stream.
func (k *KafkaPubSub) createTopics() error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return err
	}
	defer admin.Close()

	partitions := k.cfg.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	var specs []kafka.TopicSpecification
	for _, pattern := range []string{PatternAlbumUploads} {
		topic, err := patternToTopic(pattern)
		if err != nil {
			return err
		}
		specs = append(specs, kafka.TopicSpecification{Topic: topic, NumPartitions: partitions, ReplicationFactor: 1})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return err
	}
	for _, r := range results {
		switch r.Error.Code() {
		case kafka.ErrNoError, kafka.ErrTopicAlreadyExists:
		default:
			return fmt.Errorf("create topic %s: %s", r.Topic, r.Error.String())
		}
	}
	return nil
}

// watchProducer logs client-level producer errors. Delivery reports go to
// the per-message channels passed to Produce.
func (k *KafkaPubSub) watchProducer() {
	defer close(k.drained)
	for e := range k.producer.Events() {
		if kerr, ok := e.(kafka.Error); ok {
			l := log.L()
			l.Error().Str("code", kerr.Code().String()).Bool("fatal", kerr.IsFatal()).Msg(kerr.Error())
		}
	}
}

// Publish produces the event and waits for the broker acknowledgement.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	topic, album, err := channelToTopicAndKey(channel)
	if err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	delivery := make(chan kafka.Event, 1)
	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(album),
		Value:          data,
	}, delivery)
	if err != nil {
		return fmt.Errorf("kafka produce %s: %w", topic, err)
	}

	select {
	case e := <-delivery:
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return fmt.Errorf("kafka delivery %s: %w", topic, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe delivers events of one album. It joins its own consumer group so
// it never competes with pattern subscribers for partitions.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	topic, album, err := channelToTopicAndKey(channel)
	if err != nil {
		return nil, err
	}
	return k.consume(ctx, channel, topic, k.groupID()+"-"+groupSafe(album), album)
}

// SubscribePattern delivers every album's events. Subscribers sharing the
// configured group ID split the partitions between them.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	topic, err := patternToTopic(pattern)
	if err != nil {
		return nil, err
	}
	return k.consume(ctx, pattern, topic, k.groupID(), "")
}

func (k *KafkaPubSub) groupID() string {
	if k.cfg.GroupID != "" {
		return k.cfg.GroupID
	}
	return "mixtli-thumbnailer"
}

func (k *KafkaPubSub) consume(ctx context.Context, name, topic, group, album string) (<-chan *Event, error) {
	// Offsets are stored only after an event is handed to the reader, so a
	// crash redelivers instead of skipping.
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":        k.cfg.Brokers,
		"group.id":                 group,
		"auto.offset.reset":        "latest",
		"enable.auto.commit":       true,
		"enable.auto.offset.store": false,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	if err := c.Subscribe(topic, nil); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("kafka subscribe %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSub{consumer: c, cancel: cancel, done: make(chan struct{})}

	k.mu.Lock()
	old := k.subs[name]
	k.subs[name] = sub
	k.mu.Unlock()
	if old != nil {
		old.stop()
	}

	out := make(chan *Event, kafkaBuffer)
	go func() {
		defer close(sub.done)
		defer close(out)
		k.read(subCtx, c, album, out)
	}()
	return out, nil
}

func (k *KafkaPubSub) read(ctx context.Context, c *kafka.Consumer, album string, out chan<- *Event) {
	l := log.L()
	for ctx.Err() == nil {
		msg, err := c.ReadMessage(kafkaPollTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) {
				if kerr.IsTimeout() {
					continue
				}
				l.Error().Str("code", kerr.Code().String()).Bool("fatal", kerr.IsFatal()).Msg(kerr.Error())
				if kerr.IsFatal() {
					return
				}
			}
			continue
		}

		if album == "" || string(msg.Key) == album {
			var event Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				l.Warn().Err(err).Str("topic", *msg.TopicPartition.Topic).Msg("dropping malformed event")
			} else {
				select {
				case out <- &event:
				case <-ctx.Done():
					return
				}
			}
		}

		if _, err := c.StoreMessage(msg); err != nil {
			l.Warn().Err(err).Msg("kafka offset store failed")
		}
	}
}

func (s *kafkaSub) stop() {
	s.cancel()
	<-s.done
	_ = s.consumer.Close()
}

// Unsubscribe stops the consumer registered under channel or pattern.
func (k *KafkaPubSub) Unsubscribe(_ context.Context, channel string) error {
	k.mu.Lock()
	sub, ok := k.subs[channel]
	delete(k.subs, channel)
	k.mu.Unlock()
	if ok {
		sub.stop()
	}
	return nil
}

// Close stops every consumer, flushes pending messages and closes the producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	subs := k.subs
	k.subs = make(map[string]*kafkaSub)
	k.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}

	if left := k.producer.Flush(kafkaFlushMillis); left > 0 {
		l := log.L()
		l.Warn().Int("pending", left).Msg("kafka producer closed with undelivered messages")
	}
	k.producer.Close()
	<-k.drained
	return nil
}

// groupSafe keeps characters Kafka accepts in group IDs.
func groupSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return '-'
	}, s)
}
