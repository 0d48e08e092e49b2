package surface

import (
	"errors"
	"math"
	"testing"

	"volflow/models"
)

func pt(m, dte, iv float64) models.OtmPoint {
	return models.OtmPoint{Moneyness: m, DaysToExpiry: dte, IV: iv, Size: 1}
}

func TestFitFlatSurfaceInsideHull(t *testing.T) {
	points := []models.OtmPoint{
		pt(0.90, 5, 0.18),
		pt(1.10, 5, 0.18),
		pt(0.90, 30, 0.18),
		pt(1.10, 30, 0.18),
		pt(1.00, 15, 0.18),
	}
	grid := Grid{
		Moneyness: linspace(0.80, 1.20, 9),
		Maturity:  linspace(1, 45, 9),
	}

	iv, err := DelaunayFitter{}.Fit(points, grid)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	var inside, outside int
	for ti, row := range iv {
		for mi, v := range row {
			if math.IsNaN(v) {
				outside++
				continue
			}
			inside++
			if math.Abs(v-0.18) > 1e-9 {
				t.Errorf("node (%g, %g) = %g, want 0.18",
					grid.Moneyness[mi], grid.Maturity[ti], v)
			}
		}
	}
	if inside == 0 {
		t.Fatal("no grid node fell inside the hull")
	}
	if outside == 0 {
		t.Fatal("grid wider than the hull should leave outer nodes undefined")
	}
}

func TestFitTooFewPoints(t *testing.T) {
	points := []models.OtmPoint{
		pt(0.95, 10, 0.20),
		pt(1.05, 10, 0.22),
	}
	grid := Grid{Moneyness: linspace(0.80, 1.20, 5), Maturity: linspace(1, 45, 5)}

	_, err := DelaunayFitter{}.Fit(points, grid)
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("Fit error = %v, want ErrInsufficientPoints", err)
	}
}

func TestFitCollinearPoints(t *testing.T) {
	points := []models.OtmPoint{
		pt(0.90, 10, 0.20),
		pt(1.00, 10, 0.21),
		pt(1.10, 10, 0.22),
	}
	grid := Grid{Moneyness: linspace(0.80, 1.20, 5), Maturity: linspace(1, 45, 5)}

	_, err := DelaunayFitter{}.Fit(points, grid)
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("Fit error = %v, want ErrInsufficientPoints", err)
	}
}

func TestFitDuplicateCoordinatesUseMean(t *testing.T) {
	points := []models.OtmPoint{
		pt(1.00, 5, 0.20),
		pt(1.10, 5, 0.20),
		pt(1.05, 15, 0.20),
		pt(1.05, 10, 0.15),
		pt(1.05, 10, 0.19),
	}
	// A grid node sits exactly on the duplicated coordinate.
	grid := Grid{
		Moneyness: []float64{1.00, 1.05, 1.10},
		Maturity:  []float64{5, 10, 15},
	}

	iv, err := DelaunayFitter{}.Fit(points, grid)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	got := iv[1][1]
	if math.Abs(got-0.17) > 1e-9 {
		t.Fatalf("node at duplicated coordinate = %g, want mean 0.17", got)
	}
}

func TestFitDeterministicUnderPermutation(t *testing.T) {
	points := []models.OtmPoint{
		pt(0.85, 3, 0.12),
		pt(1.15, 3, 0.31),
		pt(0.90, 40, 0.22),
		pt(1.10, 40, 0.27),
		pt(1.00, 20, 0.19),
		pt(0.95, 12, 0.16),
	}
	reversed := make([]models.OtmPoint, len(points))
	for i, p := range points {
		reversed[len(points)-1-i] = p
	}
	grid := Grid{Moneyness: linspace(0.80, 1.20, 11), Maturity: linspace(1, 45, 11)}

	a, err := DelaunayFitter{}.Fit(points, grid)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	b, err := DelaunayFitter{}.Fit(reversed, grid)
	if err != nil {
		t.Fatalf("Fit reversed: %v", err)
	}

	for ti := range a {
		for mi := range a[ti] {
			x, y := a[ti][mi], b[ti][mi]
			if math.IsNaN(x) != math.IsNaN(y) || (!math.IsNaN(x) && x != y) {
				t.Fatalf("node [%d][%d] differs under permutation: %g vs %g", ti, mi, x, y)
			}
		}
	}
}

func TestFitNoExtrapolation(t *testing.T) {
	points := []models.OtmPoint{
		pt(0.98, 9, 0.20),
		pt(1.02, 9, 0.21),
		pt(1.00, 11, 0.22),
	}
	grid := Grid{Moneyness: linspace(0.80, 1.20, 9), Maturity: linspace(1, 45, 9)}

	iv, err := DelaunayFitter{}.Fit(points, grid)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	// Far corner of the grid sits well outside the tiny hull.
	if !math.IsNaN(iv[0][0]) {
		t.Fatalf("node far outside the hull = %g, want NaN", iv[0][0])
	}
	if !math.IsNaN(iv[len(iv)-1][len(iv[0])-1]) {
		t.Fatal("opposite far corner should also be NaN")
	}
}

func TestLinspaceEndpoints(t *testing.T) {
	got := linspace(0.80, 1.20, 25)
	if len(got) != 25 {
		t.Fatalf("len = %d, want 25", len(got))
	}
	if got[0] != 0.80 || got[24] != 1.20 {
		t.Fatalf("endpoints = %g, %g; want 0.80, 1.20", got[0], got[24])
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("values not strictly increasing at %d", i)
		}
	}
}
