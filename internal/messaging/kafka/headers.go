package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// producerHeaders переносит trace context в headers исходящего сообщения.
type producerHeaders struct {
	msg *sarama.ProducerMessage
}

func (h producerHeaders) Get(key string) string {
	for _, header := range h.msg.Headers {
		if string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}

func (h producerHeaders) Set(key, value string) {
	for i := range h.msg.Headers {
		if string(h.msg.Headers[i].Key) == key {
			h.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	h.msg.Headers = append(h.msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (h producerHeaders) Keys() []string {
	keys := make([]string, 0, len(h.msg.Headers))
	for _, header := range h.msg.Headers {
		keys = append(keys, string(header.Key))
	}
	return keys
}

// consumerHeaders читает trace context из headers входящего сообщения.
type consumerHeaders struct {
	msg *sarama.ConsumerMessage
}

func (h consumerHeaders) Get(key string) string {
	return headerValue(h.msg, key)
}

func (h consumerHeaders) Set(key, value string) {
	h.msg.Headers = append(h.msg.Headers, &sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (h consumerHeaders) Keys() []string {
	keys := make([]string, 0, len(h.msg.Headers))
	for _, header := range h.msg.Headers {
		if header != nil {
			keys = append(keys, string(header.Key))
		}
	}
	return keys
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, header := range msg.Headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}

// extractTraceContext продолжает трассу продюсера в обработчике сообщения.
func extractTraceContext(ctx context.Context, msg *sarama.ConsumerMessage) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, consumerHeaders{msg: msg})
}

var (
	_ propagation.TextMapCarrier = producerHeaders{}
	_ propagation.TextMapCarrier = consumerHeaders{}
)
