package service

//go:generate mockgen -source=report.go -destination=mocks/mock_report.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shenikar/outage_reports/internal/models"
	"github.com/shenikar/outage_reports/internal/webhook"
	"github.com/sirupsen/logrus"
)

// timeLayout - ISO 8601 с миллисекундами, как в уже сохраненных отчетах
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// AddressLookup определяет внешний сервис поиска адреса по почтовому индексу
type AddressLookup interface {
	Lookup(ctx context.Context, zipCode string) (models.Address, error)
}

// LocationInput - данные первого шага мастера
type LocationInput struct {
	Neighborhood     string
	City             string
	ZipCode          string
	EventType        models.NaturalEventType
	EventDescription string
}

// DurationInput - данные шага длительности. Нулевой EndTime означает, что отключение продолжается.
type DurationInput struct {
	StartTime         time.Time
	EndTime           time.Time
	EstimatedDuration string
}

// DamagesInput - данные шага ущерба
type DamagesInput struct {
	Description        string
	AffectedHouses     int
	AffectedBusinesses int
	OtherDamages       string
}

// Overview - сводка по всем отчетам
type Overview struct {
	Total  int                             `json:"total"`
	ByType map[models.NaturalEventType]int `json:"byType"`
}

// ReportService определяет контракт мастера отчетов, которым пользуется UI
type ReportService interface {
	StartReport(ctx context.Context, input LocationInput) (*models.Incident, error)
	SaveLocation(ctx context.Context, id string, input LocationInput) (*models.Incident, error)
	SaveDuration(ctx context.Context, id string, input DurationInput) (*models.Incident, error)
	SaveDamages(ctx context.Context, id string, input DamagesInput) (*models.Incident, error)
	GetReport(ctx context.Context, id string) (*models.Incident, error)
	ListReports(ctx context.Context) ([]models.Incident, error)
	DeleteReport(ctx context.Context, id string) error
	Overview(ctx context.Context) (Overview, error)
	Recommendations() []models.RecommendationSection
	LookupAddress(ctx context.Context, zipCode string) (models.Address, error)
	Status() RegistryStatus
}

// RegistryStatus - состояние реестра для health-check
type RegistryStatus struct {
	Ready     bool `json:"ready"`
	Corrupted bool `json:"corrupted"`
	Records   int  `json:"records"`
}

type reportService struct {
	registry  EventRegistry
	addresses AddressLookup
	publisher webhook.WebhookPublisher
	clock     clockwork.Clock
	logger    *logrus.Logger
}

// NewReportService создает сервис мастера. publisher может быть nil - тогда уведомления не отправляются.
func NewReportService(registry EventRegistry, addresses AddressLookup, publisher webhook.WebhookPublisher, clock clockwork.Clock, logger *logrus.Logger) ReportService {
	return &reportService{
		registry:  registry,
		addresses: addresses,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// StartReport создает черновик отчета с заполненным местом и значениями по умолчанию для остальных шагов
func (s *reportService) StartReport(ctx context.Context, input LocationInput) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "report",
		"method":   "StartReport",
		"zip_code": input.ZipCode,
	})
	log.Info("Attempting to start a new report")

	if !s.registry.Ready() {
		return nil, fmt.Errorf("service: could not start report: %w", models.ErrRegistryNotReady)
	}
	if err := validateLocation(input); err != nil {
		log.WithError(err).Warn("Location validation failed")
		return nil, fmt.Errorf("service: could not start report: %w", err)
	}

	now := s.clock.Now().UTC()
	incident, err := s.registry.Create(ctx, func(taken func(string) bool) models.Incident {
		return models.Incident{
			ID:       nextID(now, taken),
			Date:     now.Format(timeLayout),
			Location: locationFromInput(input),
			Duration: models.Duration{
				StartTime: now.Format(timeLayout),
				EndTime:   "",
			},
			Damages: models.Damages{},
			NaturalEvent: models.NaturalEvent{
				Type:        input.EventType,
				Description: strings.TrimSpace(input.EventDescription),
			},
		}
	})
	if err != nil {
		log.WithError(err).Error("Failed to add report to registry")
		return nil, fmt.Errorf("service: could not start report: %w", err)
	}

	s.publish(ctx, webhook.EventCreated, incident.ID, &incident)
	log.WithField("incident_id", incident.ID).Info("Report started successfully")
	return &incident, nil
}

// SaveLocation изменяет место и причину отключения существующего отчета
func (s *reportService) SaveLocation(ctx context.Context, id string, input LocationInput) (*models.Incident, error) {
	if err := validateLocation(input); err != nil {
		return nil, fmt.Errorf("service: could not save location: %w", err)
	}
	return s.modify(ctx, "SaveLocation", id, func(incident *models.Incident) {
		incident.Location = locationFromInput(input)
		incident.NaturalEvent.Type = input.EventType
		if description := strings.TrimSpace(input.EventDescription); description != "" {
			incident.NaturalEvent.Description = description
		}
	})
}

// SaveDuration записывает время начала и окончания отключения
func (s *reportService) SaveDuration(ctx context.Context, id string, input DurationInput) (*models.Incident, error) {
	if input.StartTime.IsZero() {
		return nil, fmt.Errorf("service: could not save duration: %w: start time is required", models.ErrInvalidIncident)
	}
	if !input.EndTime.IsZero() && input.EndTime.Before(input.StartTime) {
		return nil, fmt.Errorf("service: could not save duration: %w: end time is before start time", models.ErrInvalidIncident)
	}

	return s.modify(ctx, "SaveDuration", id, func(incident *models.Incident) {
		duration := models.Duration{
			StartTime:         input.StartTime.UTC().Format(timeLayout),
			EstimatedDuration: strings.TrimSpace(input.EstimatedDuration),
		}
		if !input.EndTime.IsZero() {
			duration.EndTime = input.EndTime.UTC().Format(timeLayout)
		}
		incident.Duration = duration
	})
}

// SaveDamages записывает описание ущерба и количество пострадавших объектов
func (s *reportService) SaveDamages(ctx context.Context, id string, input DamagesInput) (*models.Incident, error) {
	if input.AffectedHouses < 0 || input.AffectedBusinesses < 0 {
		return nil, fmt.Errorf("service: could not save damages: %w: affected counts must not be negative", models.ErrInvalidIncident)
	}

	return s.modify(ctx, "SaveDamages", id, func(incident *models.Incident) {
		incident.Damages = models.Damages{
			Description:        strings.TrimSpace(input.Description),
			AffectedHouses:     input.AffectedHouses,
			AffectedBusinesses: input.AffectedBusinesses,
			OtherDamages:       strings.TrimSpace(input.OtherDamages),
		}
	})
}

// GetReport возвращает отчет по id
func (s *reportService) GetReport(ctx context.Context, id string) (*models.Incident, error) {
	if !s.registry.Ready() {
		return nil, fmt.Errorf("service: could not get report: %w", models.ErrRegistryNotReady)
	}
	incident, ok := s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("service: could not get report %s: %w", id, models.ErrIncidentNotFound)
	}
	return &incident, nil
}

// ListReports возвращает все отчеты в порядке создания
func (s *reportService) ListReports(ctx context.Context) ([]models.Incident, error) {
	if !s.registry.Ready() {
		return nil, fmt.Errorf("service: could not list reports: %w", models.ErrRegistryNotReady)
	}
	return s.registry.Records(), nil
}

// DeleteReport удаляет отчет без возможности восстановления
func (s *reportService) DeleteReport(ctx context.Context, id string) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "report",
		"method":      "DeleteReport",
		"incident_id": id,
	})
	log.Info("Attempting to delete report")

	if !s.registry.Ready() {
		return fmt.Errorf("service: could not delete report: %w", models.ErrRegistryNotReady)
	}
	if err := s.registry.RemoveExisting(ctx, id); err != nil {
		if errors.Is(err, models.ErrIncidentNotFound) {
			log.Warn("Attempted to delete a non-existent report")
		} else {
			log.WithError(err).Error("Failed to remove report from registry")
		}
		return fmt.Errorf("service: could not delete report: %w", err)
	}

	s.publish(ctx, webhook.EventDeleted, id, nil)
	log.Info("Report deleted successfully")
	return nil
}

// Overview считает отчеты по категориям природных явлений
func (s *reportService) Overview(ctx context.Context) (Overview, error) {
	if !s.registry.Ready() {
		return Overview{}, fmt.Errorf("service: could not build overview: %w", models.ErrRegistryNotReady)
	}

	records := s.registry.Records()
	overview := Overview{
		Total:  len(records),
		ByType: make(map[models.NaturalEventType]int, len(models.NaturalEventTypes)),
	}
	for _, t := range models.NaturalEventTypes {
		overview.ByType[t] = 0
	}
	for _, incident := range records {
		if incident.NaturalEvent.Type.Valid() {
			overview.ByType[incident.NaturalEvent.Type]++
		}
	}
	return overview, nil
}

func (s *reportService) Recommendations() []models.RecommendationSection {
	return models.Recommendations()
}

// LookupAddress ищет район и город по почтовому индексу
func (s *reportService) LookupAddress(ctx context.Context, zipCode string) (models.Address, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "report",
		"method":   "LookupAddress",
		"zip_code": zipCode,
	})

	address, err := s.addresses.Lookup(ctx, zipCode)
	if err != nil {
		log.WithError(err).Warn("Address lookup failed")
		return models.Address{}, fmt.Errorf("service: could not look up address: %w", err)
	}
	return address, nil
}

func (s *reportService) Status() RegistryStatus {
	return RegistryStatus{
		Ready:     s.registry.Ready(),
		Corrupted: s.registry.Corrupted(),
		Records:   len(s.registry.Records()),
	}
}

// modify выполняет чтение-изменение-запись одного черновика по явному id.
// Весь цикл идет под блокировкой реестра.
func (s *reportService) modify(ctx context.Context, method, id string, apply func(*models.Incident)) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "report",
		"method":      method,
		"incident_id": id,
	})
	log.Info("Attempting to update report")

	if !s.registry.Ready() {
		return nil, fmt.Errorf("service: could not update report: %w", models.ErrRegistryNotReady)
	}

	incident, err := s.registry.Modify(ctx, id, func(incident *models.Incident) error {
		apply(incident)
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrIncidentNotFound) {
			log.Warn("Attempted to update a non-existent report")
		} else {
			log.WithError(err).Error("Failed to update report in registry")
		}
		return nil, fmt.Errorf("service: could not update report: %w", err)
	}

	s.publish(ctx, webhook.EventUpdated, incident.ID, &incident)
	log.Info("Report updated successfully")
	return &incident, nil
}

// nextID выводит id из времени создания в миллисекундах. При совпадении
// берется следующая свободная миллисекунда, чтобы новый отчет не затер чужой.
func nextID(now time.Time, taken func(string) bool) string {
	ms := now.UnixMilli()
	for {
		id := strconv.FormatInt(ms, 10)
		if !taken(id) {
			return id
		}
		ms++
	}
}

func (s *reportService) publish(ctx context.Context, eventType webhook.EventType, id string, incident *models.Incident) {
	if s.publisher == nil {
		return
	}
	event := webhook.NewRecordEvent(eventType, id, incident, s.clock.Now().UTC())
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"service":     "report",
			"incident_id": id,
			"event_type":  eventType,
		}).Warn("Failed to publish record event")
	}
}

func validateLocation(input LocationInput) error {
	if input.EventType != "" && !input.EventType.Valid() {
		return fmt.Errorf("%w: unknown natural event type %q", models.ErrInvalidIncident, input.EventType)
	}
	return nil
}

func locationFromInput(input LocationInput) models.Location {
	return models.Location{
		Neighborhood: strings.TrimSpace(input.Neighborhood),
		City:         strings.TrimSpace(input.City),
		ZipCode:      strings.TrimSpace(input.ZipCode),
	}
}
