package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Grid is a weekly timetable laid out for rendering: one row per bell slot, one column per day.
type Grid struct {
	Title   string
	Corner  string
	Columns []string
	Rows    []GridRow
}

// GridRow is one bell slot. Cells align with Grid.Columns.
type GridRow struct {
	Label string
	Time  string
	Cells []string
}

func (g Grid) header() []string {
	header := make([]string, 0, len(g.Columns)+2)
	header = append(header, g.Corner, "Time")
	return append(header, g.Columns...)
}

func (g Grid) record(row GridRow) []string {
	record := make([]string, 0, len(g.Columns)+2)
	record = append(record, row.Label, row.Time)
	for i := range g.Columns {
		cell := ""
		if i < len(row.Cells) {
			cell = row.Cells[i]
		}
		record = append(record, cell)
	}
	return record
}

// CSVExporter renders a Grid into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the grid.
func (e *CSVExporter) Render(grid Grid) ([]byte, error) {
	if len(grid.Columns) == 0 {
		return nil, fmt.Errorf("csv requires at least one day column")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(grid.header()); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range grid.Rows {
		if err := writer.Write(grid.record(row)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
