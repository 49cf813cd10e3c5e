package mq

import (
	"fmt"

	"walletledger/internal/config"

	"github.com/IBM/sarama"
)

// Producer 账本事件生产者
type Producer struct {
	producer sarama.SyncProducer
}

// NewProducer 包装已有的 SyncProducer，测试中传入 sarama/mocks
func NewProducer(p sarama.SyncProducer) *Producer {
	return &Producer{producer: p}
}

// InitKafka 初始化 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) (*Producer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	return NewProducer(producer), nil
}

// SendMessage 发送消息，key 相同的消息落在同一分区保证顺序
func (p *Producer) SendMessage(topic, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *Producer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
