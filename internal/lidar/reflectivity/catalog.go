// Package reflectivity maps hit objects to surface reflectivity coefficients.
//
// Resolution is a fixed two-step protocol: an actor label override wins,
// otherwise the semantic tag table applies, and unknown tags fall back to
// DefaultReflectivity.
package reflectivity

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

//go:embed catalogs/*.json
var embeddedCatalogs embed.FS

// DefaultCatalogPath is the embedded catalog used when no file is configured.
const DefaultCatalogPath = "catalogs/default.json"

// DefaultReflectivity is returned for tags missing from the table. A value
// of zero means the surface absorbs everything.
const DefaultReflectivity = 0.0

// Catalog is a read-only reflectivity table. Safe for concurrent use.
type Catalog struct {
	byTag  [256]float64
	hasTag [256]bool
	labels map[string]float64
}

// NewCatalog builds a catalog from tag defaults and label overrides. All
// values must lie in [0,1]. The maps are copied.
func NewCatalog(tags map[Tag]float64, labels map[string]float64) (*Catalog, error) {
	c := &Catalog{labels: make(map[string]float64, len(labels))}
	for tag, v := range tags {
		if err := checkRange(v); err != nil {
			return nil, fmt.Errorf("tag %s: %w", tag, err)
		}
		c.byTag[tag] = v
		c.hasTag[tag] = true
	}
	for label, v := range labels {
		if err := checkRange(v); err != nil {
			return nil, fmt.Errorf("label %q: %w", label, err)
		}
		c.labels[label] = v
	}
	return c, nil
}

func checkRange(v float64) error {
	if !(v >= 0 && v <= 1) {
		return fmt.Errorf("reflectivity %g out of range [0,1]", v)
	}
	return nil
}

// ByTag returns the reflectivity for tag, or DefaultReflectivity.
func (c *Catalog) ByTag(tag Tag) float64 {
	if !c.hasTag[tag] {
		return DefaultReflectivity
	}
	return c.byTag[tag]
}

// ByLabel returns the override for an actor label. Lookup is case-sensitive.
func (c *Catalog) ByLabel(label string) (float64, bool) {
	if label == "" {
		return 0, false
	}
	v, ok := c.labels[label]
	return v, ok
}

// Resolve applies the label override first and the tag table otherwise.
func (c *Catalog) Resolve(tag Tag, label string) float64 {
	if v, ok := c.ByLabel(label); ok {
		return v
	}
	return c.ByTag(tag)
}

// Labels returns the number of label overrides.
func (c *Catalog) Labels() int { return len(c.labels) }

// WithLabels returns a copy of c with extra label overrides merged in.
// Overrides replace existing entries with the same label.
func (c *Catalog) WithLabels(overrides map[string]float64) (*Catalog, error) {
	out := &Catalog{
		byTag:  c.byTag,
		hasTag: c.hasTag,
		labels: make(map[string]float64, len(c.labels)+len(overrides)),
	}
	for k, v := range c.labels {
		out.labels[k] = v
	}
	for k, v := range overrides {
		if err := checkRange(v); err != nil {
			return nil, fmt.Errorf("label %q: %w", k, err)
		}
		out.labels[k] = v
	}
	return out, nil
}

// catalogFile is the JSON schema of a catalog file. Tags are keyed by name.
type catalogFile struct {
	Tags   map[string]float64 `json:"tags"`
	Labels map[string]float64 `json:"labels"`
}

// LoadCatalog parses a JSON catalog.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse reflectivity catalog: %w", err)
	}

	tags := make(map[Tag]float64, len(f.Tags))
	for name, v := range f.Tags {
		tag, err := ParseTag(name)
		if err != nil {
			return nil, err
		}
		tags[tag] = v
	}
	return NewCatalog(tags, f.Labels)
}

// LoadCatalogFile loads a JSON catalog from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("reflectivity catalog must have .json extension, got %q", ext)
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open reflectivity catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// DefaultCatalog loads the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	f, err := embeddedCatalogs.Open(DefaultCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded reflectivity catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}
