package webhook

//go:generate mockgen -source=publisher.go -destination=mocks/mock_publisher.go -package=mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/outage_reports/internal/models"
)

const (
	recordEventsQueueKey = "record_events"
)

// EventType - вид изменения записи
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// RecordEvent - уведомление об изменении отчета
type RecordEvent struct {
	ID         uuid.UUID        `json:"id"`
	Type       EventType        `json:"type"`
	IncidentID string           `json:"incident_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Incident   *models.Incident `json:"incident,omitempty"` // Отсутствует для удаления
}

// NewRecordEvent создает событие с новым идентификатором доставки
func NewRecordEvent(eventType EventType, incidentID string, incident *models.Incident, at time.Time) RecordEvent {
	return RecordEvent{
		ID:         uuid.New(),
		Type:       eventType,
		IncidentID: incidentID,
		Timestamp:  at,
		Incident:   incident,
	}
}

// WebhookPublisher - интерфейс для публикации уведомлений
type WebhookPublisher interface {
	Publish(ctx context.Context, event RecordEvent) error
}

// RedisWebhookPublisher - реализация WebhookPublisher, использующая Redis
type RedisWebhookPublisher struct {
	redisClient *redis.Client
}

// NewRedisWebhookPublisher создает новый RedisWebhookPublisher
func NewRedisWebhookPublisher(client *redis.Client) *RedisWebhookPublisher {
	return &RedisWebhookPublisher{
		redisClient: client,
	}
}

// Publish публикует событие в очередь Redis
func (p *RedisWebhookPublisher) Publish(ctx context.Context, event RecordEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal record event: %w", err)
	}

	// LPUSH добавляет событие в левую часть списка, воркер забирает справа
	if err := p.redisClient.LPush(ctx, recordEventsQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish record event to Redis: %w", err)
	}
	return nil
}
