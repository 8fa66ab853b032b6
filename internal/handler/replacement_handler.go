package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-scheduling-engine/internal/dto"
	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	"github.com/noah-isme/sma-scheduling-engine/internal/service"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
	"github.com/noah-isme/sma-scheduling-engine/pkg/response"
)

type replacementResponder interface {
	Accept(ctx context.Context, taskID string, req dto.AcceptReplacementRequest) (*models.ReplacementTask, error)
	Decline(ctx context.Context, taskID string, req dto.DeclineReplacementRequest) (*dto.DeclineReplacementResponse, error)
	Respond(ctx context.Context, req dto.RespondReplacementRequest) (*dto.RespondReplacementResponse, error)
}

// ReplacementHandler lets candidates answer substitute offers.
type ReplacementHandler struct {
	service replacementResponder
}

// NewReplacementHandler constructs the handler.
func NewReplacementHandler(svc *service.ReplacementService) *ReplacementHandler {
	return &ReplacementHandler{service: svc}
}

// Accept godoc
// @Summary Accept a pending substitute offer
// @Tags Replacements
// @Accept json
// @Produce json
// @Param taskId path string true "Replacement task ID"
// @Param payload body dto.AcceptReplacementRequest true "Accept payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /replacements/{taskId}/accept [post]
func (h *ReplacementHandler) Accept(c *gin.Context) {
	var req dto.AcceptReplacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid accept payload"))
		return
	}
	task, err := h.service.Accept(c.Request.Context(), c.Param("taskId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// Decline godoc
// @Summary Decline a pending substitute offer
// @Description The occurrence moves to the next candidate or is escalated to administrators.
// @Tags Replacements
// @Accept json
// @Produce json
// @Param taskId path string true "Replacement task ID"
// @Param payload body dto.DeclineReplacementRequest true "Decline payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /replacements/{taskId}/decline [post]
func (h *ReplacementHandler) Decline(c *gin.Context) {
	var req dto.DeclineReplacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decline payload"))
		return
	}
	result, err := h.service.Decline(c.Request.Context(), c.Param("taskId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Respond godoc
// @Summary Answer an offer with the token it carried
// @Tags Replacements
// @Accept json
// @Produce json
// @Param payload body dto.RespondReplacementRequest true "Token response"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /replacements/respond [post]
func (h *ReplacementHandler) Respond(c *gin.Context) {
	var req dto.RespondReplacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid response payload"))
		return
	}
	result, err := h.service.Respond(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
