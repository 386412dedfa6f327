package fog

import (
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/interp"
)

//go:embed tables/*.csv
var embeddedTables embed.FS

// DefaultTablePath is the embedded step-size table used when no table file is configured.
const DefaultTablePath = "tables/step_size.csv"

// ErrEmptyTable is returned when a fog model is built without any table entries.
var ErrEmptyTable = errors.New("fog: empty step-size table")

// DensityPoint is one regression input of the step-size table.
type DensityPoint struct {
	Density  float64 // fog density in [0,1]
	StepSize float64 // mean free path in metres, > 0
}

// Table is a read-only step-size lookup table sorted ascending by density.
type Table struct {
	points []DensityPoint
	pl     *interp.PiecewiseLinear // nil for single-entry tables
}

// NewTable validates and sorts the given points. The slice is copied.
func NewTable(points []DensityPoint) (*Table, error) {
	if len(points) == 0 {
		return nil, ErrEmptyTable
	}

	sorted := make([]DensityPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Density < sorted[j].Density })

	for i, p := range sorted {
		if p.Density < 0 || p.Density > 1 {
			return nil, fmt.Errorf("fog: density %g out of range [0,1]", p.Density)
		}
		if p.StepSize <= 0 {
			return nil, fmt.Errorf("fog: step size must be positive, got %g at density %g", p.StepSize, p.Density)
		}
		if i > 0 && sorted[i-1].Density == p.Density {
			return nil, fmt.Errorf("fog: duplicate density %g", p.Density)
		}
	}

	t := &Table{points: sorted}
	if len(sorted) >= 2 {
		xs := make([]float64, len(sorted))
		ys := make([]float64, len(sorted))
		for i, p := range sorted {
			xs[i] = p.Density
			ys[i] = p.StepSize
		}
		t.pl = &interp.PiecewiseLinear{}
		// Fit only fails on unsorted or short input, both ruled out above.
		if err := t.pl.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("fog: fit step-size table: %w", err)
		}
	}
	return t, nil
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.points)
}

// Points returns a copy of the table entries in ascending density order.
func (t *Table) Points() []DensityPoint {
	out := make([]DensityPoint, len(t.points))
	copy(out, t.points)
	return out
}

// StepSize interpolates the step size at density between the bracketing
// entries. Densities outside the table clamp to the nearest edge.
func (t *Table) StepSize(density float64) float64 {
	first := t.points[0]
	last := t.points[len(t.points)-1]
	if t.pl == nil || density <= first.Density {
		return first.StepSize
	}
	if density >= last.Density {
		return last.StepSize
	}
	return t.pl.Predict(density)
}

// LoadTableCSV reads a table with the header "density,step_size".
// Lines starting with '#' are ignored.
func LoadTableCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read step-size CSV: %w", err)
	}
	return parseTableRecords(records)
}

func parseTableRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, ErrEmptyTable
	}

	header := records[0]
	if len(header) != 2 ||
		strings.ToLower(strings.TrimSpace(header[0])) != "density" ||
		strings.ToLower(strings.TrimSpace(header[1])) != "step_size" {
		return nil, fmt.Errorf("invalid header in step-size table, expected: density,step_size")
	}

	points := make([]DensityPoint, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != 2 {
			return nil, fmt.Errorf("invalid record at row %d: expected 2 fields", i+2)
		}
		density, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid density at row %d: %w", i+2, err)
		}
		step, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid step size at row %d: %w", i+2, err)
		}
		points = append(points, DensityPoint{Density: density, StepSize: step})
	}
	return NewTable(points)
}

// LoadTableFile loads a step-size table from a CSV file on disk.
func LoadTableFile(path string) (*Table, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".csv" {
		return nil, fmt.Errorf("step-size table must have .csv extension, got %q", ext)
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open step-size table: %w", err)
	}
	defer f.Close()
	return LoadTableCSV(f)
}

// DefaultTable loads the embedded step-size table.
func DefaultTable() (*Table, error) {
	f, err := embeddedTables.Open(DefaultTablePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded step-size table: %w", err)
	}
	defer f.Close()
	return LoadTableCSV(f)
}
