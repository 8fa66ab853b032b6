package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-scheduling-engine/internal/dto"
	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	"github.com/noah-isme/sma-scheduling-engine/internal/service"
	"github.com/noah-isme/sma-scheduling-engine/pkg/response"
)

type absenceProcessor interface {
	ProcessApprovedAbsence(ctx context.Context, absenceID string) (*dto.ProcessAbsenceResponse, error)
	ListByAbsence(ctx context.Context, absenceID string) ([]models.ReplacementTask, error)
}

type absenceEnqueuer interface {
	Enqueue(ctx context.Context, absenceID string) (*dto.AbsenceJobAccepted, error)
}

// AbsenceHandler starts the substitute search for approved absences.
type AbsenceHandler struct {
	service absenceProcessor
	queue   absenceEnqueuer
}

// NewAbsenceHandler constructs the handler.
func NewAbsenceHandler(svc *service.ReplacementService, dispatcher *service.AbsenceDispatcher) *AbsenceHandler {
	return &AbsenceHandler{service: svc, queue: dispatcher}
}

// Process godoc
// @Summary Find substitutes for an approved absence
// @Description Expands the absence into dated occurrences and offers each one to the best candidate. Runs synchronously.
// @Tags Replacements
// @Produce json
// @Param id path string true "Absence ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /absences/{id}/replacements [post]
func (h *AbsenceHandler) Process(c *gin.Context) {
	result, err := h.service.ProcessApprovedAbsence(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Approved godoc
// @Summary Queue an approved absence for substitute search
// @Tags Replacements
// @Produce json
// @Param id path string true "Absence ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /absences/{id}/approved [post]
func (h *AbsenceHandler) Approved(c *gin.Context) {
	accepted, err := h.queue.Enqueue(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, accepted, nil)
}

// Replacements godoc
// @Summary List replacement tasks raised for an absence
// @Tags Replacements
// @Produce json
// @Param id path string true "Absence ID"
// @Success 200 {object} response.Envelope
// @Router /absences/{id}/replacements [get]
func (h *AbsenceHandler) Replacements(c *gin.Context) {
	tasks, err := h.service.ListByAbsence(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tasks, nil)
}
