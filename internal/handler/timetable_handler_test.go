package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-scheduling-engine/internal/dto"
	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	"github.com/noah-isme/sma-scheduling-engine/internal/service"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
)

type timetableServiceMock struct {
	generateErr error
	classID     string
	request     dto.GenerateTimetableRequest
	query       dto.TimetableQuery
	conflicts   []models.TimetableConflict
}

func (m *timetableServiceMock) Generate(ctx context.Context, classID string, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	m.classID = classID
	m.request = req
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	return &dto.GenerateTimetableResponse{ClassID: classID, TermID: req.TermID, PlacedCount: 15}, nil
}

func (m *timetableServiceMock) Validate(ctx context.Context, classID string) ([]models.TimetableConflict, error) {
	return m.conflicts, nil
}

func (m *timetableServiceMock) Get(ctx context.Context, classID string, query dto.TimetableQuery) (*dto.TimetableView, error) {
	m.query = query
	return &dto.TimetableView{ClassID: classID, Cells: []dto.TimetableCell{}}, nil
}

func (m *timetableServiceMock) Export(ctx context.Context, classID string, query dto.TimetableQuery) (*service.ExportFile, error) {
	m.query = query
	return &service.ExportFile{Filename: "timetable-" + classID + ".csv", ContentType: "text/csv", Data: []byte("Period,Time\n")}, nil
}

func newTimetableRouter(mock *timetableServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &TimetableHandler{generator: mock, validator: mock, reader: mock}
	router := gin.New()
	router.POST("/timetables/:classId/generate", h.Generate)
	router.GET("/timetables/:classId/conflicts", h.Conflicts)
	router.GET("/timetables/:classId/export", h.Export)
	router.GET("/timetables/:classId", h.Get)
	return router
}

func TestTimetableGenerateSuccess(t *testing.T) {
	mock := &timetableServiceMock{}
	router := newTimetableRouter(mock)

	req, _ := http.NewRequest(http.MethodPost, "/timetables/10A/generate", bytes.NewReader([]byte(`{"termId":"term-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10A", mock.classID)
	assert.Equal(t, "term-1", mock.request.TermID)
}

func TestTimetableGenerateCapacityExceeded(t *testing.T) {
	mock := &timetableServiceMock{generateErr: appErrors.Clone(appErrors.ErrCapacityExceeded, "total quota 41 exceeds capacity 40")}
	router := newTimetableRouter(mock)

	req, _ := http.NewRequest(http.MethodPost, "/timetables/10A/generate", bytes.NewReader([]byte(`{"termId":"term-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, body.Error.Code)
}

func TestTimetableGenerateMalformedBody(t *testing.T) {
	router := newTimetableRouter(&timetableServiceMock{})

	req, _ := http.NewRequest(http.MethodPost, "/timetables/10A/generate", bytes.NewReader([]byte(`{"termId":`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableConflictsCount(t *testing.T) {
	mock := &timetableServiceMock{conflicts: []models.TimetableConflict{
		{TeacherID: "T1", DayOfWeek: 1, SlotNumber: 3, ClassIDs: []string{"10A", "10B"}},
	}}
	router := newTimetableRouter(mock)

	req, _ := http.NewRequest(http.MethodGet, "/timetables/10A/conflicts", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []models.TimetableConflict `json:"data"`
		Meta map[string]interface{}     `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, []string{"10A", "10B"}, body.Data[0].ClassIDs)
	assert.EqualValues(t, 1, body.Meta["count"])
}

func TestTimetableGetPassesDate(t *testing.T) {
	mock := &timetableServiceMock{}
	router := newTimetableRouter(mock)

	req, _ := http.NewRequest(http.MethodGet, "/timetables/10A?date=2026-10-14", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-10-14", mock.query.Date)
}

func TestTimetableExportStreamsFile(t *testing.T) {
	mock := &timetableServiceMock{}
	router := newTimetableRouter(mock)

	req, _ := http.NewRequest(http.MethodGet, "/timetables/10A/export?format=csv", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", mock.query.Format)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable-10A.csv")
	assert.Equal(t, "Period,Time\n", w.Body.String())
}
