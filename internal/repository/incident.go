package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/shenikar/outage_reports/internal/models"
	"github.com/shenikar/outage_reports/internal/observability"
	"github.com/shenikar/outage_reports/internal/service"
	"github.com/sirupsen/logrus"
)

// IncidentRepository хранит всю коллекцию отчетов одним JSON-массивом под одним ключом.
// Каждая операция читает и перезаписывает коллекцию целиком.
type IncidentRepository struct {
	kv      KeyValueStore
	key     string
	clock   clockwork.Clock
	logger  *logrus.Logger
	metrics *observability.Metrics
}

func NewIncidentRepository(kv KeyValueStore, key string, clock clockwork.Clock, logger *logrus.Logger, metrics *observability.Metrics) service.IncidentRepository {
	return &IncidentRepository{
		kv:      kv,
		key:     key,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// ReadAll возвращает всю коллекцию в порядке вставки.
// При ошибке всегда возвращается пустой (не nil) слайс вместе с ошибкой;
// нераспознаваемое содержимое оборачивает models.ErrStorageCorrupted.
func (r *IncidentRepository) ReadAll(ctx context.Context) ([]models.Incident, error) {
	incidents, _, err := r.load(ctx)
	if err != nil {
		r.observe("read", err)
		return []models.Incident{}, err
	}
	r.observe("read", nil)
	return incidents, nil
}

// Upsert заменяет запись с тем же id или добавляет ее в конец коллекции
func (r *IncidentRepository) Upsert(ctx context.Context, incident models.Incident) error {
	err := r.mutate(ctx, func(incidents []models.Incident) ([]models.Incident, bool) {
		for i := range incidents {
			if incidents[i].ID == incident.ID {
				incidents[i] = incident
				return incidents, true
			}
		}
		return append(incidents, incident), true
	})
	r.observe("upsert", err)
	if err != nil {
		return fmt.Errorf("failed to upsert incident %s: %w", incident.ID, err)
	}
	return nil
}

// Delete удаляет все записи с указанным id. Отсутствующий id - не ошибка.
func (r *IncidentRepository) Delete(ctx context.Context, id string) error {
	err := r.mutate(ctx, func(incidents []models.Incident) ([]models.Incident, bool) {
		kept := make([]models.Incident, 0, len(incidents))
		for _, incident := range incidents {
			if incident.ID != id {
				kept = append(kept, incident)
			}
		}
		return kept, len(kept) != len(incidents)
	})
	r.observe("delete", err)
	if err != nil {
		return fmt.Errorf("failed to delete incident %s: %w", id, err)
	}
	return nil
}

// load читает и разбирает коллекцию. raw возвращается и при ошибке разбора,
// чтобы поврежденные данные можно было сохранить перед перезаписью.
func (r *IncidentRepository) load(ctx context.Context) ([]models.Incident, []byte, error) {
	raw, err := r.kv.Get(ctx, r.key)
	if err != nil {
		return []models.Incident{}, nil, fmt.Errorf("failed to read incidents: %w", err)
	}
	if len(raw) == 0 {
		return []models.Incident{}, nil, nil
	}

	var incidents []models.Incident
	if err := json.Unmarshal(raw, &incidents); err != nil {
		return []models.Incident{}, raw, fmt.Errorf("%w: %v", models.ErrStorageCorrupted, err)
	}
	if incidents == nil {
		incidents = []models.Incident{}
	}
	return incidents, raw, nil
}

// mutate выполняет цикл чтение-изменение-запись. Поврежденная коллекция
// сначала копируется под резервный ключ и только потом перезаписывается.
func (r *IncidentRepository) mutate(ctx context.Context, apply func([]models.Incident) ([]models.Incident, bool)) error {
	incidents, raw, err := r.load(ctx)
	corrupted := err != nil && raw != nil
	if err != nil && !corrupted {
		return err
	}

	updated, changed := apply(incidents)
	if !changed {
		return nil
	}
	if corrupted {
		if err := r.backupCorrupted(ctx, raw); err != nil {
			return err
		}
	}

	val, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("failed to marshal incidents: %w", err)
	}
	if err := r.kv.Set(ctx, r.key, val); err != nil {
		return fmt.Errorf("failed to write incidents: %w", err)
	}
	return nil
}

func (r *IncidentRepository) backupCorrupted(ctx context.Context, raw []byte) error {
	backupKey := fmt.Sprintf("%s:corrupted:%d", r.key, r.clock.Now().Unix())
	if err := r.kv.Set(ctx, backupKey, raw); err != nil {
		return fmt.Errorf("failed to back up corrupted incidents: %w", err)
	}
	r.logger.WithFields(logrus.Fields{
		"repository": "incident",
		"backup_key": backupKey,
		"bytes":      len(raw),
	}).Warn("Corrupted incident collection backed up before overwrite")
	return nil
}

func (r *IncidentRepository) observe(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		if errors.Is(err, models.ErrStorageCorrupted) {
			outcome = "corrupted"
		}
	}
	r.metrics.StoreOperations.WithLabelValues(op, outcome).Inc()
}
