package models

import (
	"errors"
	"fmt"
)

var (
	// ErrIncidentNotFound - запись с указанным id отсутствует в реестре
	ErrIncidentNotFound = errors.New("incident not found")
	// ErrStorageCorrupted - содержимое хранилища не удалось разобрать как JSON
	ErrStorageCorrupted = errors.New("storage corrupted")
	// ErrInvalidIncident - данные шага мастера не прошли проверку
	ErrInvalidIncident = errors.New("invalid incident")
	// ErrRegistryNotReady - начальная загрузка реестра еще не завершилась
	ErrRegistryNotReady = errors.New("registry not ready")
)

// NaturalEventType - категория природного явления, вызвавшего отключение
type NaturalEventType string

const (
	NaturalEventRain      NaturalEventType = "rain"
	NaturalEventWind      NaturalEventType = "wind"
	NaturalEventLandslide NaturalEventType = "landslide"
	NaturalEventOther     NaturalEventType = "other"
)

// NaturalEventTypes перечисляет все допустимые категории в порядке отображения
var NaturalEventTypes = []NaturalEventType{
	NaturalEventRain,
	NaturalEventWind,
	NaturalEventLandslide,
	NaturalEventOther,
}

// Valid сообщает, входит ли значение в закрытый список категорий.
// Пустая строка допустима только для черновика и здесь не считается валидной.
func (t NaturalEventType) Valid() bool {
	for _, known := range NaturalEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Incident - отчет об отключении электроэнергии
type Incident struct {
	ID           string       `json:"id"`
	Date         string       `json:"date"`
	Location     Location     `json:"location"`
	Duration     Duration     `json:"duration"`
	Damages      Damages      `json:"damages"`
	NaturalEvent NaturalEvent `json:"naturalEvent"`
}

type Location struct {
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	ZipCode      string `json:"zipCode"`
}

// Duration хранит время в RFC3339. Пустой EndTime означает, что отключение продолжается.
type Duration struct {
	StartTime         string `json:"startTime"`
	EndTime           string `json:"endTime"`
	EstimatedDuration string `json:"estimatedDuration,omitempty"`
}

type Damages struct {
	Description        string `json:"description"`
	AffectedHouses     int    `json:"affectedHouses"`
	AffectedBusinesses int    `json:"affectedBusinesses"`
	OtherDamages       string `json:"otherDamages,omitempty"`
}

type NaturalEvent struct {
	Type        NaturalEventType `json:"type"`
	Description string           `json:"description"`
}

// Validate проверяет инварианты записи, которые реестр соблюдает при любой мутации
func (i Incident) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidIncident)
	}
	if i.Damages.AffectedHouses < 0 || i.Damages.AffectedBusinesses < 0 {
		return fmt.Errorf("%w: affected counts must not be negative", ErrInvalidIncident)
	}
	return nil
}
