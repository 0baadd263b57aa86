package v1

import (
	"time"

	"github.com/shenikar/outage_reports/internal/models"
)

// LocationRequest DTO для шага "место и причина"
// @Description DTO для шага "место и причина"
type LocationRequest struct {
	Neighborhood     string `json:"neighborhood" validate:"max=255"`
	City             string `json:"city" validate:"max=255"`
	ZipCode          string `json:"zipCode" validate:"omitempty,len=8,numeric"`
	EventType        string `json:"eventType" validate:"omitempty,oneof=rain wind landslide other"`
	EventDescription string `json:"eventDescription,omitempty" validate:"max=1000"`
}

// DurationRequest DTO для шага "длительность". Время в RFC3339, endTime не указывается, пока отключение продолжается.
// @Description DTO для шага "длительность"
type DurationRequest struct {
	StartTime         time.Time  `json:"startTime" validate:"required"`
	EndTime           *time.Time `json:"endTime,omitempty"`
	EstimatedDuration string     `json:"estimatedDuration,omitempty" validate:"max=255"`
}

// DamagesRequest DTO для шага "ущерб"
// @Description DTO для шага "ущерб"
type DamagesRequest struct {
	Description        string `json:"description" validate:"max=2000"`
	AffectedHouses     int    `json:"affectedHouses" validate:"gte=0"`
	AffectedBusinesses int    `json:"affectedBusinesses" validate:"gte=0"`
	OtherDamages       string `json:"otherDamages,omitempty" validate:"max=2000"`
}

// IncidentResponse DTO для ответа с отчетом об отключении
// @Description DTO для ответа с отчетом об отключении
type IncidentResponse struct {
	ID           string              `json:"id"`
	Date         string              `json:"date"`
	Location     models.Location     `json:"location"`
	Duration     models.Duration     `json:"duration"`
	Damages      models.Damages      `json:"damages"`
	NaturalEvent models.NaturalEvent `json:"naturalEvent"`
	Ongoing      bool                `json:"ongoing"`
}

// OverviewResponse DTO для сводки по категориям
// @Description DTO для сводки по категориям
type OverviewResponse struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"byType"`
}

// HealthResponse DTO для health-check
// @Description DTO для health-check
type HealthResponse struct {
	Status    string `json:"status"`
	Ready     bool   `json:"ready"`
	Corrupted bool   `json:"corrupted"`
	Records   int    `json:"records"`
}
