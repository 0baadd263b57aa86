package v1

import (
	"github.com/shenikar/outage_reports/internal/models"
	"github.com/shenikar/outage_reports/internal/service"
)

// LocationRequestToInput преобразует DTO шага места во входные данные сервиса
func LocationRequestToInput(dto LocationRequest) service.LocationInput {
	return service.LocationInput{
		Neighborhood:     dto.Neighborhood,
		City:             dto.City,
		ZipCode:          dto.ZipCode,
		EventType:        models.NaturalEventType(dto.EventType),
		EventDescription: dto.EventDescription,
	}
}

func DurationRequestToInput(dto DurationRequest) service.DurationInput {
	input := service.DurationInput{
		StartTime:         dto.StartTime,
		EstimatedDuration: dto.EstimatedDuration,
	}
	if dto.EndTime != nil {
		input.EndTime = *dto.EndTime
	}
	return input
}

func DamagesRequestToInput(dto DamagesRequest) service.DamagesInput {
	return service.DamagesInput{
		Description:        dto.Description,
		AffectedHouses:     dto.AffectedHouses,
		AffectedBusinesses: dto.AffectedBusinesses,
		OtherDamages:       dto.OtherDamages,
	}
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	return &IncidentResponse{
		ID:           model.ID,
		Date:         model.Date,
		Location:     model.Location,
		Duration:     model.Duration,
		Damages:      model.Damages,
		NaturalEvent: model.NaturalEvent,
		Ongoing:      model.Duration.EndTime == "",
	}
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(incidents []models.Incident) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(incidents))
	for i := range incidents {
		responses[i] = ModelToIncidentResponse(&incidents[i])
	}
	return responses
}

func OverviewToResponse(overview service.Overview) OverviewResponse {
	byType := make(map[string]int, len(overview.ByType))
	for t, count := range overview.ByType {
		byType[string(t)] = count
	}
	return OverviewResponse{
		Total:  overview.Total,
		ByType: byType,
	}
}
