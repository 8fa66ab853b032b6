package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-scheduling-engine/internal/dto"
	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
	"github.com/noah-isme/sma-scheduling-engine/pkg/export"
)

var dayColumns = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

type classEntryReader interface {
	ListByClass(ctx context.Context, classID string) ([]models.ScheduleEntry, error)
}

type overrideReader interface {
	ListByClassDate(ctx context.Context, classID string, date time.Time) ([]models.ScheduleOverride, error)
}

type gridRenderer interface {
	Render(grid export.Grid) ([]byte, error)
}

// ExportFile is a rendered timetable ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// TimetableService reads class timetables and renders them for download.
type TimetableService struct {
	entries   classEntryReader
	overrides overrideReader
	slots     slotCatalog
	csv       gridRenderer
	pdf       gridRenderer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimetableService constructs the read/export service. Nil renderers fall back to the defaults.
func NewTimetableService(entries classEntryReader, overrides overrideReader, slots slotCatalog, csv, pdf gridRenderer, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &TimetableService{
		entries:   entries,
		overrides: overrides,
		slots:     slots,
		csv:       csv,
		pdf:       pdf,
		validator: validate,
		logger:    logger,
	}
}

// Get returns the weekly grid of a class. With a date, substitutes accepted for that date are filled in.
func (s *TimetableService) Get(ctx context.Context, classID string, query dto.TimetableQuery) (*dto.TimetableView, error) {
	view, _, err := s.load(ctx, classID, query)
	return view, err
}

// Export renders the class timetable as CSV or PDF.
func (s *TimetableService) Export(ctx context.Context, classID string, query dto.TimetableQuery) (*ExportFile, error) {
	view, catalog, err := s.load(ctx, classID, query)
	if err != nil {
		return nil, err
	}

	grid := buildGrid(view, catalog)
	format := query.Format
	if format == "" {
		format = "csv"
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = s.pdf.Render(grid)
		contentType = "application/pdf"
	default:
		data, err = s.csv.Render(grid)
		contentType = "text/csv"
	}
	if err != nil {
		s.logger.Error("timetable render failed", zap.String("class_id", classID), zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable")
	}

	name := fmt.Sprintf("timetable-%s.%s", classID, format)
	if view.Date != nil {
		name = fmt.Sprintf("timetable-%s-%s.%s", classID, *view.Date, format)
	}
	return &ExportFile{Filename: name, ContentType: contentType, Data: data}, nil
}

func (s *TimetableService) load(ctx context.Context, classID string, query dto.TimetableQuery) (*dto.TimetableView, []models.SlotDefinition, error) {
	if classID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable query")
	}

	entries, err := s.entries.ListByClass(ctx, classID)
	if err != nil {
		return nil, nil, appErrors.Persistence(err, "failed to load class timetable")
	}
	catalog, err := s.slots.List(ctx)
	if err != nil {
		return nil, nil, appErrors.Persistence(err, "failed to load slot catalog")
	}
	times := make(map[int]models.SlotDefinition, len(catalog))
	for _, slot := range catalog {
		if slot.IsAcademic() {
			times[slot.SlotNumber] = slot
		}
	}

	view := &dto.TimetableView{ClassID: classID, Cells: make([]dto.TimetableCell, 0, len(entries))}
	substitutes := make(map[string]string)
	onDay := 0
	if query.Date != "" {
		date, err := time.Parse("2006-01-02", query.Date)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
		}
		label := query.Date
		view.Date = &label
		onDay = int(date.Weekday())
		overrides, err := s.overrides.ListByClassDate(ctx, classID, date)
		if err != nil {
			return nil, nil, appErrors.Persistence(err, "failed to load substitutions")
		}
		for _, override := range overrides {
			substitutes[override.ScheduleEntryID] = override.SubstituteTeacherID
		}
	}

	for _, entry := range entries {
		cell := dto.TimetableCell{
			EntryID:        entry.ID,
			DayOfWeek:      entry.DayOfWeek,
			SlotNumber:     entry.SlotNumber,
			SubjectID:      entry.SubjectID,
			TeacherID:      entry.TeacherID,
			IsDoublePeriod: entry.IsDoublePeriod,
		}
		if slot, ok := times[entry.SlotNumber]; ok {
			cell.StartTime = slot.StartTime
			cell.EndTime = slot.EndTime
		}
		if sub, ok := substitutes[entry.ID]; ok && entry.DayOfWeek == onDay {
			substitute := sub
			cell.SubstituteTeacherID = &substitute
		}
		view.Cells = append(view.Cells, cell)
	}
	sort.Slice(view.Cells, func(i, j int) bool {
		if view.Cells[i].DayOfWeek != view.Cells[j].DayOfWeek {
			return view.Cells[i].DayOfWeek < view.Cells[j].DayOfWeek
		}
		return view.Cells[i].SlotNumber < view.Cells[j].SlotNumber
	})
	return view, catalog, nil
}

// buildGrid lays the cells out in bell order, keeping breaks as labelled empty rows.
func buildGrid(view *dto.TimetableView, catalog []models.SlotDefinition) export.Grid {
	title := "Timetable " + view.ClassID
	if view.Date != nil {
		title += " (" + *view.Date + ")"
	}
	grid := export.Grid{Title: title, Corner: "Period", Columns: dayColumns}

	bySlot := make(map[slotKey]dto.TimetableCell, len(view.Cells))
	for _, cell := range view.Cells {
		bySlot[slotKey{Day: cell.DayOfWeek, Slot: cell.SlotNumber}] = cell
	}

	ordered := make([]models.SlotDefinition, len(catalog))
	copy(ordered, catalog)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	for _, slot := range ordered {
		row := export.GridRow{Time: slot.StartTime + "-" + slot.EndTime, Cells: make([]string, len(dayColumns))}
		if !slot.IsAcademic() {
			row.Label = string(slot.Kind)
			grid.Rows = append(grid.Rows, row)
			continue
		}
		row.Label = fmt.Sprintf("%d", slot.SlotNumber)
		for day := 1; day <= len(dayColumns); day++ {
			cell, ok := bySlot[slotKey{Day: day, Slot: slot.SlotNumber}]
			if !ok {
				continue
			}
			text := cell.SubjectID + " / " + cell.TeacherID
			if cell.SubstituteTeacherID != nil {
				text = cell.SubjectID + " / " + *cell.SubstituteTeacherID + " (sub)"
			}
			row.Cells[day-1] = text
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid
}
