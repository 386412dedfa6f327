package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/fog"
)

func testModel(t *testing.T) *fog.Model {
	t.Helper()
	model, err := loadModel("")
	if err != nil {
		t.Fatalf("loadModel: %v", err)
	}
	return model
}

func TestParseDensities(t *testing.T) {
	got, err := parseDensities(" 0, 0.5 ,1,")
	if err != nil {
		t.Fatalf("parseDensities: %v", err)
	}
	if len(got) != 3 || got[0] != 0 || got[1] != 0.5 || got[2] != 1 {
		t.Errorf("parseDensities = %v", got)
	}

	for _, bad := range []string{"", "fog", "1.5", "-0.1"} {
		if _, err := parseDensities(bad); err == nil {
			t.Errorf("parseDensities(%q) accepted", bad)
		}
	}
}

func TestBuildCurvesMonotonic(t *testing.T) {
	curves, err := buildCurves(testModel(t), []float64{0, 0.3, 0.9}, 0.5, 0.004, 100, 50)
	if err != nil {
		t.Fatalf("buildCurves: %v", err)
	}
	if len(curves) != 3 {
		t.Fatalf("len(curves) = %d", len(curves))
	}
	if curves[0].MOR != fog.NoFogMOR {
		t.Errorf("clear-air MOR = %v", curves[0].MOR)
	}

	for _, c := range curves {
		if c.XY[0].X != 0 || c.XY[len(c.XY)-1].X != 100 {
			t.Errorf("density %v spans [%v,%v]", c.Density, c.XY[0].X, c.XY[len(c.XY)-1].X)
		}
		if c.XY[0].Y != 0.5 {
			t.Errorf("density %v intensity at 0 m = %v, want 0.5", c.Density, c.XY[0].Y)
		}
		for i := 1; i < len(c.XY); i++ {
			if c.XY[i].Y > c.XY[i-1].Y {
				t.Fatalf("density %v: intensity rises at %v m", c.Density, c.XY[i].X)
			}
		}
	}

	// Denser fog never returns more light at the same distance.
	for i := range curves[0].XY {
		if curves[2].XY[i].Y > curves[1].XY[i].Y || curves[1].XY[i].Y > curves[0].XY[i].Y {
			t.Fatalf("curves cross at %v m", curves[0].XY[i].X)
		}
	}

	if _, err := buildCurves(testModel(t), []float64{0}, 0.5, 0, 100, 1); err == nil {
		t.Error("expected error for a single sample")
	}
	if _, err := buildCurves(testModel(t), []float64{0}, 0.5, 0, 0, 10); err == nil {
		t.Error("expected error for zero distance")
	}
}

func TestRenderCurves(t *testing.T) {
	curves, err := buildCurves(testModel(t), []float64{0, 0.5}, 0.8, 0.004, 80, 20)
	if err != nil {
		t.Fatalf("buildCurves: %v", err)
	}

	path := filepath.Join(t.TempDir(), "curves.png")
	if err := renderCurves(curves, 0.8, path); err != nil {
		t.Fatalf("renderCurves: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected a non-empty PNG, stat err = %v", err)
	}

	var buf bytes.Buffer
	printTable(&buf, curves)
	if !strings.Contains(buf.String(), "clear") && !strings.Contains(buf.String(), "fog") {
		t.Errorf("table output = %q", buf.String())
	}
	if got := strings.Count(buf.String(), "\n"); got != 3 {
		t.Errorf("table has %d lines, want 3", got)
	}
}
