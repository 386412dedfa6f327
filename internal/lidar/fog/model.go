package fog

import (
	"math"
	"sync"
)

const (
	// NoFogMOR is the MOR reported for a density of zero, and the upper
	// bound of every MOR this package returns.
	NoFogMOR = 10000.0

	// Ln20 is -ln(0.05), the Koschmieder constant for a 5% contrast threshold.
	Ln20 = 2.995732273553991

	// ExtinctionConstant is K in I*exp(-K*d/MOR) for the two-way path.
	ExtinctionConstant = 2 * Ln20

	maxCachedDensities = 1024
)

// Model converts fog density to MOR. It is immutable once built and safe
// for concurrent use.
type Model struct {
	table *Table
}

// NewModel builds a fog model over table. A nil or empty table is a
// configuration error.
func NewModel(table *Table) (*Model, error) {
	if table.Len() == 0 {
		return nil, ErrEmptyTable
	}
	return &Model{table: table}, nil
}

// Table returns the model's step-size table.
func (m *Model) Table() *Table { return m.table }

// ComputeMOR returns the Meteorological Optical Range for density, which is
// clamped to [0,1]. The result never exceeds NoFogMOR.
func (m *Model) ComputeMOR(density float64) float64 {
	density = clamp01(density)
	if density == 0 {
		return NoFogMOR
	}
	// sigma = 1/step, MOR = ln(20)/sigma
	mor := Ln20 * m.table.StepSize(density)
	if mor > NoFogMOR {
		return NoFogMOR
	}
	return mor
}

// AttenuateIntensity applies two-way fog extinction to base over distance.
// Non-positive distances and a MOR at or above NoFogMOR (clear air) leave
// base unattenuated; a non-positive MOR yields 0. The result is always
// clamped to [0,1].
func AttenuateIntensity(base, distance, mor float64) float64 {
	if distance <= 0 || math.IsNaN(distance) || mor >= NoFogMOR {
		return clamp01(base)
	}
	if mor <= 0 || math.IsNaN(mor) {
		return 0
	}
	return clamp01(base * math.Exp(-ExtinctionConstant*distance/mor))
}

// Visibility names the fog class for a MOR in metres.
func Visibility(mor float64) string {
	switch {
	case mor < 50:
		return "dense fog"
	case mor < 200:
		return "thick fog"
	case mor < 500:
		return "moderate fog"
	case mor < 1000:
		return "light fog"
	case mor < 2000:
		return "thin fog"
	default:
		return "clear"
	}
}

// MORCache memoizes ComputeMOR per distinct density.
type MORCache struct {
	model *Model

	mu     sync.RWMutex
	values map[float64]float64
}

// NewMORCache returns an empty cache over m.
func (m *Model) NewMORCache() *MORCache {
	return &MORCache{model: m, values: make(map[float64]float64)}
}

// ComputeMOR returns the cached MOR for density, computing it on first use.
func (c *MORCache) ComputeMOR(density float64) float64 {
	density = clamp01(density)

	c.mu.RLock()
	mor, ok := c.values[density]
	c.mu.RUnlock()
	if ok {
		return mor
	}

	mor = c.model.ComputeMOR(density)

	c.mu.Lock()
	if len(c.values) >= maxCachedDensities {
		c.values = make(map[float64]float64)
	}
	c.values[density] = mor
	c.mu.Unlock()
	return mor
}

// Len returns the number of cached densities.
func (c *MORCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
