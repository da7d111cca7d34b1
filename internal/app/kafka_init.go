package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/messaging/kafka"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// initKafkaConsumer подписывает сервис на события заказов и каталога.
// Сообщения, которые не удалось обработать, уходят в DLQ через producer.
func initKafkaConsumer(cfg Config, svc kafka.InventoryService, producer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, nil
	}

	topics := make([]string, 0, 2)
	for _, topic := range []string{cfg.KafkaOrderTopic, cfg.KafkaCatalogTopic} {
		if topic = strings.TrimSpace(topic); topic != "" {
			topics = append(topics, topic)
		}
	}
	if len(topics) == 0 {
		return nil, nil
	}

	handler := kafka.NewInventoryHandler(svc, logger.WithField("component", "kafka-inventory-handler"))
	consumer, err := kafka.NewConsumerWithDLQ(cfg.KafkaBrokers, cfg.KafkaGroupID, topics, handler, producer, cfg.KafkaMaxRetries)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, continuing without event intake")
		return nil, err
	}
	return consumer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// ParseBrokers разбирает список брокеров через запятую.
func ParseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
