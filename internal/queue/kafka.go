package queue

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/sirupsen/logrus"
)

var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher produces events keyed by document id, so a document's events stay ordered.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaPublisher(brokers, topic string) (*KafkaPublisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := &KafkaPublisher{producer: producer, topic: topic}
	go p.drain()

	return p, nil
}

// drain logs delivery failures reported asynchronously by the producer.
func (p *KafkaPublisher) drain() {
	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				logrus.Errorf("kafka delivery failed for %s: %v", string(ev.Key), ev.TopicPartition.Error)
			}
		case kafka.Error:
			logrus.Errorf("kafka error: %v", ev)
		}
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := event.MarshalBinary()
	if err != nil {
		return err
	}

	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.DocumentID),
		Value:          value,
		Headers:        []kafka.Header{{Key: "type", Value: []byte(event.Type)}},
	}, nil)
}

func (p *KafkaPublisher) Close() error {
	remaining := p.producer.Flush(5000)
	if remaining > 0 {
		logrus.Warnf("kafka producer closed with %d undelivered events", remaining)
	}
	p.producer.Close()
	return nil
}
