package api

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"stockdash/server/internal/services"
)

// ContactEventType тип события в топике контактов
const ContactEventType = "supplier.contacted"

// ContactEventProducer публикует события контактов с поставщиками в Kafka (бинарный Protobuf)
type ContactEventProducer struct {
	writer    *kafka.Writer
	sentCount int64
}

// NewContactEventProducer создает producer. Пустой список брокеров -> nil (публикация выключена).
func NewContactEventProducer(kafkaBrokers, topic, username, password, caCert string) *ContactEventProducer {
	brokers := ParseKafkaBrokers(kafkaBrokers)
	if len(brokers) == 0 {
		log.Printf("⚠️ Kafka: KAFKA_BROKERS не задан, события контактов публиковаться не будут")
		return nil
	}

	dialer := CreateKafkaDialer(username, password, caCert)
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{}, // Один товар -> одна партиция
		Transport: &kafka.Transport{
			SASL:        dialer.SASLMechanism,
			TLS:         dialer.TLS,
			DialTimeout: dialer.Timeout,
		},
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	log.Printf("✅ Kafka producer контактов подключен к %s (топик %s)", strings.Join(brokers, ","), topic)

	return &ContactEventProducer{writer: writer}
}

// EncodeContactEvent кодирует событие в protobuf Struct
func EncodeContactEvent(event services.ContactEvent) ([]byte, error) {
	payload, err := structpb.NewStruct(map[string]interface{}{
		"type":          ContactEventType,
		"dialog_id":     event.DialogID,
		"item_id":       event.ItemID,
		"item_name":     event.ItemName,
		"supplier_id":   event.SupplierID,
		"supplier_name": event.SupplierName,
		"phone":         event.Phone,
		"recipe_code":   event.RecipeCode,
		"forecast_date": event.ForecastDate,
		"locale":        event.Locale,
		"occurred_at":   event.OccurredAt.Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки события: %w", err)
	}
	return proto.Marshal(payload)
}

// DecodeContactEvent разбирает событие (для потребителей и тестов)
func DecodeContactEvent(data []byte) (map[string]interface{}, error) {
	var payload structpb.Struct
	if err := proto.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("ошибка разбора события: %w", err)
	}
	return payload.AsMap(), nil
}

// PublishContact отправляет событие, ключ сообщения = ID товара
func (p *ContactEventProducer) PublishContact(ctx context.Context, event services.ContactEvent) error {
	if p == nil || p.writer == nil {
		return nil
	}
	value, err := EncodeContactEvent(event)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.ItemID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ContactEventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("ошибка отправки события в Kafka: %w", err)
	}
	atomic.AddInt64(&p.sentCount, 1)
	return nil
}

// SentCount количество успешно отправленных событий
func (p *ContactEventProducer) SentCount() int64 {
	if p == nil {
		return 0
	}
	return atomic.LoadInt64(&p.sentCount)
}

// Close закрывает Kafka writer
func (p *ContactEventProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
