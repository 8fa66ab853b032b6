package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-scheduling-engine/internal/dto"
	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	"github.com/noah-isme/sma-scheduling-engine/internal/service"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
	"github.com/noah-isme/sma-scheduling-engine/pkg/response"
)

type timetableGenerator interface {
	Generate(ctx context.Context, classID string, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
}

type conflictValidator interface {
	Validate(ctx context.Context, classID string) ([]models.TimetableConflict, error)
}

type timetableReader interface {
	Get(ctx context.Context, classID string, query dto.TimetableQuery) (*dto.TimetableView, error)
	Export(ctx context.Context, classID string, query dto.TimetableQuery) (*service.ExportFile, error)
}

// TimetableHandler exposes class timetable endpoints.
type TimetableHandler struct {
	generator timetableGenerator
	validator conflictValidator
	reader    timetableReader
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(generator *service.TimetableGeneratorService, validator *service.TimetableValidatorService, reader *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{generator: generator, validator: validator, reader: reader}
}

// Generate godoc
// @Summary Generate the weekly timetable of a class
// @Description Replaces all entries of the class for the term. Fails without changes when the quota exceeds the monthly capacity.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.GenerateTimetableRequest true "Generation payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetables/{classId}/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.generator.Generate(c.Request.Context(), c.Param("classId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Conflicts godoc
// @Summary List teacher double bookings touching a class
// @Tags Timetables
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{classId}/conflicts [get]
func (h *TimetableHandler) Conflicts(c *gin.Context) {
	conflicts, err := h.validator.Validate(c.Request.Context(), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil, map[string]interface{}{"count": len(conflicts)})
}

// Get godoc
// @Summary Read the weekly timetable of a class
// @Tags Timetables
// @Produce json
// @Param classId path string true "Class ID"
// @Param date query string false "Resolve substitutes for this date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /timetables/{classId} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable query"))
		return
	}
	view, err := h.reader.Get(c.Request.Context(), c.Param("classId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Export godoc
// @Summary Download the timetable of a class
// @Tags Timetables
// @Produce text/csv
// @Produce application/pdf
// @Param classId path string true "Class ID"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Param date query string false "Resolve substitutes for this date (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /timetables/{classId}/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	file, err := h.reader.Export(c.Request.Context(), c.Param("classId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
