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

type assignmentManager interface {
	Create(ctx context.Context, req dto.CreateAssignmentRequest) (*models.Assignment, error)
	UpdateQuota(ctx context.Context, id string, req dto.UpdateQuotaRequest) (*models.Assignment, error)
}

// AssignmentHandler manages teaching assignments and their quotas.
type AssignmentHandler struct {
	service assignmentManager
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(svc *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: svc}
}

// Create godoc
// @Summary Assign a teacher to a subject in a class
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body dto.CreateAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	var req dto.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	assignment, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// UpdateQuota godoc
// @Summary Change the remaining quota of an assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.UpdateQuotaRequest true "Quota payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /assignments/{id}/quota [patch]
func (h *AssignmentHandler) UpdateQuota(c *gin.Context) {
	var req dto.UpdateQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid quota payload"))
		return
	}
	assignment, err := h.service.UpdateQuota(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}
