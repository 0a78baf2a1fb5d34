package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pulseops-lab/pulseops/internal/core/config"
)

const (
	DriverKafka  = "kafka"
	DriverAMQP   = "amqp"
	DriverMemory = "memory"
)

// Transport builds watermill publishers and subscribers for the configured driver.
type Transport struct {
	cfg    config.BusConfig
	logger watermill.LoggerAdapter

	once    sync.Once
	channel *gochannel.GoChannel
}

func NewTransport(cfg config.BusConfig, logger watermill.LoggerAdapter) (*Transport, error) {
	switch cfg.Driver {
	case DriverKafka, DriverAMQP, DriverMemory:
	default:
		return nil, fmt.Errorf("unsupported bus driver %q", cfg.Driver)
	}
	return &Transport{cfg: cfg, logger: logger}, nil
}

// Topology returns the topic layout for the driver.
func (t *Transport) Topology() Topology {
	return Topology{
		Topic:      t.cfg.Topic,
		Partitions: t.cfg.Partitions,
		Native:     t.cfg.Driver == DriverKafka,
	}
}

// NackDelay is how long a handler should hold a failed message before
// nacking it. The kafka subscriber sleeps NackResendSleep on its own;
// the amqp and memory subscribers redeliver at once.
func (t *Transport) NackDelay() time.Duration {
	if t.cfg.Driver == DriverKafka {
		return 0
	}
	return t.cfg.NackResendSleep
}

// Publisher builds a raw watermill publisher.
func (t *Transport) Publisher() (message.Publisher, error) {
	switch t.cfg.Driver {
	case DriverKafka:
		pub, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:               t.cfg.Brokers,
			Marshaler:             kafka.NewWithPartitioningMarshaler(partitionKey),
			OverwriteSaramaConfig: kafkaPublisherConfig(),
		}, t.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		return pub, nil

	case DriverAMQP:
		pub, err := amqp.NewPublisher(t.amqpConfig(), t.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create amqp publisher: %w", err)
		}
		return pub, nil

	default:
		return t.goChannel(), nil
	}
}

// Subscriber builds a raw watermill subscriber joined to the consumer group.
func (t *Transport) Subscriber() (message.Subscriber, error) {
	switch t.cfg.Driver {
	case DriverKafka:
		sub, err := kafka.NewSubscriber(kafka.SubscriberConfig{
			Brokers:               t.cfg.Brokers,
			Unmarshaler:           kafka.NewWithPartitioningMarshaler(partitionKey),
			OverwriteSaramaConfig: kafkaSubscriberConfig(),
			ConsumerGroup:         t.cfg.ConsumerGroup,
			NackResendSleep:       t.cfg.NackResendSleep,
			ReconnectRetrySleep:   time.Second,
		}, t.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka subscriber: %w", err)
		}
		return sub, nil

	case DriverAMQP:
		sub, err := amqp.NewSubscriber(t.amqpConfig(), t.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create amqp subscriber: %w", err)
		}
		return sub, nil

	default:
		return t.goChannel(), nil
	}
}

// goChannel is shared by the publisher and subscriber sides of the memory driver.
// Publish returns only once the subscriber acked each message, which keeps a
// topic strictly ordered. Nothing is retained: messages published to a topic
// with no subscriber are dropped, so the worker must be running first.
func (t *Transport) goChannel() *gochannel.GoChannel {
	t.once.Do(func() {
		t.channel = gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            1024,
			BlockPublishUntilSubscriberAck: true,
		}, t.logger)
	})
	return t.channel
}

// amqpConfig declares one durable queue per topic and consumer group, so
// every worker in the group competes for the same queue.
func (t *Transport) amqpConfig() amqp.Config {
	cfg := amqp.NewDurablePubSubConfig(t.cfg.AMQPURL, amqp.GenerateQueueNameTopicNameWithSuffix(t.cfg.ConsumerGroup))
	cfg.Consume.Qos.PrefetchCount = 1
	return cfg
}

func partitionKey(_ string, msg *message.Message) (string, error) {
	return msg.Metadata.Get(MetadataPartitionKey), nil
}

func kafkaPublisherConfig() *sarama.Config {
	cfg := kafka.DefaultSaramaSyncPublisherConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Producer.Retry.Max = 3
	return cfg
}

func kafkaSubscriberConfig() *sarama.Config {
	cfg := kafka.DefaultSaramaSubscriberConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	return cfg
}
