package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-scheduling-engine/internal/dto"
	"github.com/noah-isme/sma-scheduling-engine/internal/service"
	"github.com/noah-isme/sma-scheduling-engine/pkg/response"
)

type decayRunner interface {
	RunWeeklyDecay(ctx context.Context) (*dto.DecayResult, error)
}

// DecayHandler triggers the weekly quota decay outside its schedule.
type DecayHandler struct {
	service decayRunner
}

// NewDecayHandler constructs the handler.
func NewDecayHandler(svc *service.WeeklyDecayService) *DecayHandler {
	return &DecayHandler{service: svc}
}

// Run godoc
// @Summary Run the weekly quota decay now
// @Description Safe to repeat: assignments already decayed this cycle are skipped.
// @Tags Assignments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /decay/run [post]
func (h *DecayHandler) Run(c *gin.Context) {
	result, err := h.service.RunWeeklyDecay(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
