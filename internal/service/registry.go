package service

//go:generate mockgen -source=registry.go -destination=mocks/mock_registry.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shenikar/outage_reports/internal/models"
	"github.com/shenikar/outage_reports/internal/observability"
	"github.com/sirupsen/logrus"
)

// IncidentRepository определяет контракт долговременного хранилища отчетов
type IncidentRepository interface {
	ReadAll(ctx context.Context) ([]models.Incident, error)
	Upsert(ctx context.Context, incident models.Incident) error
	Delete(ctx context.Context, id string) error
}

// EventRegistry - единственный источник истины для UI: кэш всей коллекции в памяти,
// каждое изменение которого сначала записывается в хранилище.
type EventRegistry interface {
	Initialize(ctx context.Context)
	Ready() bool
	Corrupted() bool
	Records() []models.Incident
	Get(id string) (models.Incident, bool)
	Latest() (models.Incident, bool)
	Add(ctx context.Context, incident models.Incident) error
	Update(ctx context.Context, incident models.Incident) error
	Remove(ctx context.Context, id string) error

	// Create, Modify и RemoveExisting выполняют поиск и запись под одной блокировкой
	Create(ctx context.Context, build func(taken func(id string) bool) models.Incident) (models.Incident, error)
	Modify(ctx context.Context, id string, apply func(incident *models.Incident) error) (models.Incident, error)
	RemoveExisting(ctx context.Context, id string) error
}

type eventRegistry struct {
	repo    IncidentRepository
	logger  *logrus.Logger
	metrics *observability.Metrics

	// mu сериализует мутации: в каждый момент выполняется не более одного
	// цикла чтение-изменение-запись в хранилище.
	mu        sync.RWMutex
	records   []models.Incident
	ready     bool
	corrupted bool
}

func NewEventRegistry(repo IncidentRepository, logger *logrus.Logger, metrics *observability.Metrics) EventRegistry {
	return &eventRegistry{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		records: []models.Incident{},
	}
}

// Initialize загружает коллекцию один раз при старте. Ошибки загрузки только
// логируются: реестр становится готовым с пустой коллекцией.
func (r *eventRegistry) Initialize(ctx context.Context) {
	log := r.logger.WithFields(logrus.Fields{
		"service": "registry",
		"method":  "Initialize",
	})
	log.Info("Loading incidents from storage")

	incidents, err := r.repo.ReadAll(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ready = true
	if err != nil {
		r.records = []models.Incident{}
		r.corrupted = errors.Is(err, models.ErrStorageCorrupted)
		r.metrics.RegistryRecords.Set(0)
		log.WithError(err).WithField("corrupted", r.corrupted).Error("Failed to load incidents, starting with an empty collection")
		return
	}

	r.records = append(make([]models.Incident, 0, len(incidents)), incidents...)
	r.corrupted = false
	r.metrics.RegistryRecords.Set(float64(len(r.records)))
	log.WithField("count", len(r.records)).Info("Incidents loaded successfully")
}

func (r *eventRegistry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Corrupted сообщает, что при загрузке хранилище содержало нераспознаваемые данные
func (r *eventRegistry) Corrupted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.corrupted
}

// Records возвращает копию коллекции в порядке вставки
func (r *eventRegistry) Records() []models.Incident {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(make([]models.Incident, 0, len(r.records)), r.records...)
}

func (r *eventRegistry) Get(id string) (models.Incident, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.records[i], true
	}
	return models.Incident{}, false
}

// Latest возвращает последнюю добавленную запись. Только для отображения:
// шаги мастера всегда работают по явному id черновика.
func (r *eventRegistry) Latest() (models.Incident, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.records) == 0 {
		return models.Incident{}, false
	}
	return r.records[len(r.records)-1], true
}

// Add добавляет запись. Если id уже есть в реестре, запись обновляется на месте.
func (r *eventRegistry) Add(ctx context.Context, incident models.Incident) error {
	if err := incident.Validate(); err != nil {
		r.observe("add", err)
		return fmt.Errorf("service: could not add incident: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(incident.ID) >= 0 {
		r.logger.WithField("incident_id", incident.ID).Warn("Incident already exists, updating instead of adding")
		return r.update(ctx, incident)
	}
	return r.insert(ctx, incident)
}

// Create выделяет id и добавляет новую запись. build получает проверку занятости id
// и вызывается с захваченным mu, поэтому два одновременных вызова не получат один id.
func (r *eventRegistry) Create(ctx context.Context, build func(taken func(id string) bool) models.Incident) (models.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	incident := build(func(id string) bool {
		return r.indexOf(id) >= 0
	})
	if err := incident.Validate(); err != nil {
		r.observe("add", err)
		return models.Incident{}, fmt.Errorf("service: could not add incident: %w", err)
	}
	if r.indexOf(incident.ID) >= 0 {
		r.observe("add", models.ErrInvalidIncident)
		return models.Incident{}, fmt.Errorf("service: could not add incident: %w: id %s is taken", models.ErrInvalidIncident, incident.ID)
	}

	if err := r.insert(ctx, incident); err != nil {
		return models.Incident{}, err
	}
	return incident, nil
}

// Update записывает запись в хранилище и заменяет ее в памяти, сохраняя позицию
func (r *eventRegistry) Update(ctx context.Context, incident models.Incident) error {
	if err := incident.Validate(); err != nil {
		r.observe("update", err)
		return fmt.Errorf("service: could not update incident: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(ctx, incident)
}

// Modify применяет apply к копии существующей записи и сохраняет результат.
// Удаленная запись не воскрешается: отсутствующий id дает ErrIncidentNotFound.
func (r *eventRegistry) Modify(ctx context.Context, id string, apply func(incident *models.Incident) error) (models.Incident, error) {
	log := r.logger.WithFields(logrus.Fields{
		"service":     "registry",
		"method":      "Modify",
		"incident_id": id,
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		r.observe("update", models.ErrIncidentNotFound)
		return models.Incident{}, fmt.Errorf("service: could not update incident %s: %w", id, models.ErrIncidentNotFound)
	}

	incident := r.records[i]
	if err := apply(&incident); err != nil {
		r.observe("update", err)
		return models.Incident{}, fmt.Errorf("service: could not update incident: %w", err)
	}
	incident.ID = id
	if err := incident.Validate(); err != nil {
		r.observe("update", err)
		return models.Incident{}, fmt.Errorf("service: could not update incident: %w", err)
	}

	if err := r.repo.Upsert(ctx, incident); err != nil {
		r.observe("update", err)
		log.WithError(err).Error("Failed to update incident in repository")
		return models.Incident{}, fmt.Errorf("service: could not update incident: %w", err)
	}

	r.records[i] = incident
	r.observe("update", nil)
	log.Info("Incident updated successfully")
	return incident, nil
}

// insert и update вызываются с захваченным mu
func (r *eventRegistry) insert(ctx context.Context, incident models.Incident) error {
	log := r.logger.WithFields(logrus.Fields{
		"service":     "registry",
		"method":      "Add",
		"incident_id": incident.ID,
	})

	if err := r.repo.Upsert(ctx, incident); err != nil {
		r.observe("add", err)
		log.WithError(err).Error("Failed to add incident to repository")
		return fmt.Errorf("service: could not add incident: %w", err)
	}

	r.records = append(r.records, incident)
	r.metrics.RegistryRecords.Set(float64(len(r.records)))
	r.observe("add", nil)
	log.Info("Incident added successfully")
	return nil
}

func (r *eventRegistry) update(ctx context.Context, incident models.Incident) error {
	log := r.logger.WithFields(logrus.Fields{
		"service":     "registry",
		"method":      "Update",
		"incident_id": incident.ID,
	})

	if err := r.repo.Upsert(ctx, incident); err != nil {
		r.observe("update", err)
		log.WithError(err).Error("Failed to update incident in repository")
		return fmt.Errorf("service: could not update incident: %w", err)
	}

	// Upsert в хранилище добавляет отсутствующую запись в конец,
	// память повторяет это поведение.
	if i := r.indexOf(incident.ID); i >= 0 {
		r.records[i] = incident
	} else {
		log.Warn("Updated incident was not in memory, appending it")
		r.records = append(r.records, incident)
	}

	r.metrics.RegistryRecords.Set(float64(len(r.records)))
	r.observe("update", nil)
	log.Info("Incident updated successfully")
	return nil
}

// Remove удаляет запись из хранилища и из памяти. Отсутствующий id - не ошибка.
func (r *eventRegistry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(ctx, id)
}

// RemoveExisting удаляет запись, если она есть, иначе возвращает ErrIncidentNotFound
func (r *eventRegistry) RemoveExisting(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(id) < 0 {
		r.observe("remove", models.ErrIncidentNotFound)
		return fmt.Errorf("service: could not remove incident %s: %w", id, models.ErrIncidentNotFound)
	}
	return r.remove(ctx, id)
}

func (r *eventRegistry) remove(ctx context.Context, id string) error {
	log := r.logger.WithFields(logrus.Fields{
		"service":     "registry",
		"method":      "Remove",
		"incident_id": id,
	})

	if err := r.repo.Delete(ctx, id); err != nil {
		r.observe("remove", err)
		log.WithError(err).Error("Failed to remove incident from repository")
		return fmt.Errorf("service: could not remove incident: %w", err)
	}

	kept := make([]models.Incident, 0, len(r.records))
	for _, incident := range r.records {
		if incident.ID != id {
			kept = append(kept, incident)
		}
	}
	r.records = kept

	r.metrics.RegistryRecords.Set(float64(len(r.records)))
	r.observe("remove", nil)
	log.Info("Incident removed successfully")
	return nil
}

func (r *eventRegistry) indexOf(id string) int {
	for i := range r.records {
		if r.records[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *eventRegistry) observe(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.metrics.RegistryMutation.WithLabelValues(op, outcome).Inc()
}
