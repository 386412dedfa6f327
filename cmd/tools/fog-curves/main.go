// Command fog-curves plots received intensity against distance for a set of
// fog densities, using the same fog table and attenuation as the sensor.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/fog"
)

var (
	outFile      = flag.String("out", "fog_curves.png", "Output PNG path")
	maxDistance  = flag.Float64("max-distance", 120, "Largest distance on the x axis in meters")
	densityList  = flag.String("densities", "0,0.1,0.25,0.5,0.75,1", "Comma-separated fog densities in [0,1]")
	reflectivity = flag.Float64("reflectivity", 0.5, "Surface reflectivity in [0,1]")
	atmosphere   = flag.Float64("atmosphere", 0.004, "Clear-air attenuation rate per meter")
	samples      = flag.Int("samples", 240, "Points per curve")
	tablePath    = flag.String("table", "", "Fog table CSV (default: embedded table)")
)

// curve is one density's intensity profile.
type curve struct {
	Density float64
	MOR     float64
	XY      plotter.XYs
}

func parseDensities(s string) ([]float64, error) {
	var out []float64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		d, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid density %q: %w", field, err)
		}
		if d < 0 || d > 1 {
			return nil, fmt.Errorf("density %v outside [0,1]", d)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no densities given")
	}
	return out, nil
}

// buildCurves samples base*exp(-atmosphere*x) attenuated by each density's
// MOR over [0, maxDist].
func buildCurves(model *fog.Model, densities []float64, refl, atmosphere, maxDist float64, n int) ([]curve, error) {
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 samples, got %d", n)
	}
	if !(maxDist > 0) {
		return nil, fmt.Errorf("max distance must be positive, got %v", maxDist)
	}

	xs := floats.Span(make([]float64, n), 0, maxDist)
	curves := make([]curve, 0, len(densities))
	for _, d := range densities {
		mor := model.ComputeMOR(d)
		xy := make(plotter.XYs, n)
		for i, x := range xs {
			base := refl * math.Exp(-atmosphere*x)
			xy[i] = plotter.XY{X: x, Y: fog.AttenuateIntensity(base, x, mor)}
		}
		curves = append(curves, curve{Density: d, MOR: mor, XY: xy})
	}
	return curves, nil
}

func renderCurves(curves []curve, refl float64, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Received intensity vs distance (reflectivity %.2f)", refl)
	p.X.Label.Text = "Distance (m)"
	p.Y.Label.Text = "Intensity"
	p.Y.Min = 0
	p.Y.Max = math.Max(refl, 0.01)

	for i, c := range curves {
		line, err := plotter.NewLine(c.XY)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("density %.2f (MOR %.0f m)", c.Density, c.MOR), line)
	}
	p.Add(plotter.NewGrid())

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p.Save(10*vg.Inch, 6*vg.Inch, path)
}

func printTable(w io.Writer, curves []curve) {
	fmt.Fprintf(w, "%-8s %10s  %s\n", "density", "MOR (m)", "visibility")
	for _, c := range curves {
		fmt.Fprintf(w, "%-8.2f %10.1f  %s\n", c.Density, c.MOR, fog.Visibility(c.MOR))
	}
}

func loadModel(path string) (*fog.Model, error) {
	var (
		table *fog.Table
		err   error
	)
	if path == "" {
		table, err = fog.DefaultTable()
	} else {
		table, err = fog.LoadTableFile(path)
	}
	if err != nil {
		return nil, err
	}
	return fog.NewModel(table)
}

func main() {
	flag.Parse()

	densities, err := parseDensities(*densityList)
	if err != nil {
		log.Fatalf("fog-curves: %v", err)
	}
	if *reflectivity < 0 || *reflectivity > 1 {
		log.Fatalf("fog-curves: reflectivity %v outside [0,1]", *reflectivity)
	}

	model, err := loadModel(*tablePath)
	if err != nil {
		log.Fatalf("fog-curves: failed to load fog table: %v", err)
	}

	curves, err := buildCurves(model, densities, *reflectivity, *atmosphere, *maxDistance, *samples)
	if err != nil {
		log.Fatalf("fog-curves: %v", err)
	}
	printTable(os.Stdout, curves)

	if err := renderCurves(curves, *reflectivity, *outFile); err != nil {
		log.Fatalf("fog-curves: failed to render %s: %v", *outFile, err)
	}
	log.Printf("Wrote %s", *outFile)
}
