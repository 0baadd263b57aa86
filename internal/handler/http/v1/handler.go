package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shenikar/outage_reports/internal/config"
	"github.com/shenikar/outage_reports/internal/models"
	"github.com/shenikar/outage_reports/internal/service"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	reportService service.ReportService
	logger        *logrus.Logger
	validate      *validator.Validate
	cfg           *config.Config
}

func NewHandler(reportService service.ReportService, logger *logrus.Logger, cfg *config.Config) *Handler {
	return &Handler{
		reportService: reportService,
		logger:        logger,
		validate:      validator.New(),
		cfg:           cfg,
	}
}

// @Summary List outage reports
// @Description Get all outage reports in creation order
// @Tags Reports
// @Accept json
// @Produce json
// @Success 200 {array} IncidentResponse
// @Failure 503 {object} map[string]string "Registry is still loading"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports [get]
func (h *Handler) listReports(c *gin.Context) {
	log := h.logger.WithField("method", "listReports")

	incidents, err := h.reportService.ListReports(c.Request.Context())
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents))
}

// @Summary Get outage overview
// @Description Count reports per natural event category
// @Tags Reports
// @Accept json
// @Produce json
// @Success 200 {object} OverviewResponse
// @Failure 503 {object} map[string]string "Registry is still loading"
// @Router /reports/overview [get]
func (h *Handler) getOverview(c *gin.Context) {
	log := h.logger.WithField("method", "getOverview")

	overview, err := h.reportService.Overview(c.Request.Context())
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	c.JSON(http.StatusOK, OverviewToResponse(overview))
}

// @Summary Get report by ID
// @Description Get a single outage report by its ID
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} IncidentResponse
// @Failure 404 {object} map[string]string "Report not found"
// @Failure 503 {object} map[string]string "Registry is still loading"
// @Router /reports/{id} [get]
func (h *Handler) getReport(c *gin.Context) {
	id := c.Param("id")
	log := h.logger.WithField("method", "getReport").WithField("id", id)

	incident, err := h.reportService.GetReport(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Start a new report
// @Description Create a draft report from the location step. Requires API key.
// @Tags Reports
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param location body LocationRequest true "Location step"
// @Success 201 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 503 {object} map[string]string "Registry is still loading"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports [post]
func (h *Handler) startReport(c *gin.Context) {
	var input LocationRequest
	log := h.logger.WithField("method", "startReport")

	if !h.bindAndValidate(c, log, &input) {
		return
	}

	incident, err := h.reportService.StartReport(c.Request.Context(), LocationRequestToInput(input))
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToIncidentResponse(incident))
}

// @Summary Save the location step
// @Description Replace location and natural event of a report. Requires API key.
// @Tags Reports
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Report ID"
// @Param location body LocationRequest true "Location step"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Report not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports/{id}/location [put]
func (h *Handler) saveLocation(c *gin.Context) {
	id := c.Param("id")
	log := h.logger.WithField("method", "saveLocation").WithField("id", id)

	var input LocationRequest
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	incident, err := h.reportService.SaveLocation(c.Request.Context(), id, LocationRequestToInput(input))
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Save the duration step
// @Description Set start and end time of an outage. Omit endTime while the outage is ongoing. Requires API key.
// @Tags Reports
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Report ID"
// @Param duration body DurationRequest true "Duration step"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Report not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports/{id}/duration [put]
func (h *Handler) saveDuration(c *gin.Context) {
	id := c.Param("id")
	log := h.logger.WithField("method", "saveDuration").WithField("id", id)

	var input DurationRequest
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	incident, err := h.reportService.SaveDuration(c.Request.Context(), id, DurationRequestToInput(input))
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Save the damages step
// @Description Set damage description and affected counts. Requires API key.
// @Tags Reports
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Report ID"
// @Param damages body DamagesRequest true "Damages step"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Report not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports/{id}/damages [put]
func (h *Handler) saveDamages(c *gin.Context) {
	id := c.Param("id")
	log := h.logger.WithField("method", "saveDamages").WithField("id", id)

	var input DamagesRequest
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	incident, err := h.reportService.SaveDamages(c.Request.Context(), id, DamagesRequestToInput(input))
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Delete a report
// @Description Permanently delete a report by its ID. Requires API key.
// @Tags Reports
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Report ID"
// @Success 204 "No Content"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Report not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /reports/{id} [delete]
func (h *Handler) deleteReport(c *gin.Context) {
	id := c.Param("id")
	log := h.logger.WithField("method", "deleteReport").WithField("id", id)

	if err := h.reportService.DeleteReport(c.Request.Context(), id); err != nil {
		h.respondError(c, log, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary Get safety recommendations
// @Description Static guidance for before, during and after an outage
// @Tags Recommendations
// @Produce json
// @Success 200 {array} models.RecommendationSection
// @Router /recommendations [get]
func (h *Handler) getRecommendations(c *gin.Context) {
	c.JSON(http.StatusOK, h.reportService.Recommendations())
}

// @Summary Look up address by zip code
// @Description Resolve neighborhood and city for an 8-digit Brazilian zip code (CEP)
// @Tags Address
// @Produce json
// @Param zip path string true "Zip code"
// @Success 200 {object} models.Address
// @Failure 400 {object} map[string]string "Invalid zip code"
// @Failure 404 {object} map[string]string "Zip code not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /address/{zip} [get]
func (h *Handler) lookupAddress(c *gin.Context) {
	zip := c.Param("zip")
	log := h.logger.WithField("method", "lookupAddress").WithField("zip_code", zip)

	address, err := h.reportService.LookupAddress(c.Request.Context(), zip)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, address)
}

// @Summary Get application health status
// @Description Get health status of the application and the report registry
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse "Status OK"
// @Failure 503 {object} HealthResponse "Registry is still loading"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	status := h.reportService.Status()
	resp := HealthResponse{
		Status:    "ok",
		Ready:     status.Ready,
		Corrupted: status.Corrupted,
		Records:   status.Records,
	}
	if !status.Ready {
		resp.Status = "loading"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	if status.Corrupted {
		resp.Status = "degraded"
	}
	c.JSON(http.StatusOK, resp)
}

// bindAndValidate разбирает тело запроса и проверяет теги validate. false означает, что ответ уже отправлен.
func (h *Handler) bindAndValidate(c *gin.Context, log *logrus.Entry, input any) bool {
	if err := c.ShouldBindJSON(input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// respondError переводит доменные ошибки сервиса в HTTP-статусы
func (h *Handler) respondError(c *gin.Context, log *logrus.Entry, err error) {
	switch {
	case errors.Is(err, models.ErrRegistryNotReady):
		log.WithError(err).Warn("Registry is not ready")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registry is loading, try again later"})
	case errors.Is(err, models.ErrIncidentNotFound):
		log.WithError(err).Warn("Report not found")
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
	case errors.Is(err, models.ErrAddressNotFound):
		log.WithError(err).Warn("Address not found")
		c.JSON(http.StatusNotFound, gin.H{"error": "address not found"})
	case errors.Is(err, models.ErrInvalidIncident):
		log.WithError(err).Warn("Invalid input")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.WithError(err).Error("Service call failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
