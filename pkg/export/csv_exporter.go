package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
)

// ErrNoColumns is returned when a dataset declares no columns.
var ErrNoColumns = errors.New("dataset has no columns")

// Dataset is an ordered table ready for rendering.
type Dataset struct {
	Title   string
	Notes   []string
	Columns []string
	Rows    [][]string
}

// Validate checks every row matches the column count.
func (d Dataset) Validate() error {
	if len(d.Columns) == 0 {
		return ErrNoColumns
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(d.Columns))
		}
	}
	return nil
}

// CSVExporter writes datasets as RFC 4180 CSV. Title and notes are omitted.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// ContentType of the rendered output.
func (e *CSVExporter) ContentType() string { return "text/csv" }

// Extension of the rendered output.
func (e *CSVExporter) Extension() string { return "csv" }

// Render produces CSV bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := writer.WriteAll(data.Rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}
