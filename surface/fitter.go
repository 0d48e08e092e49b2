package surface

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/fogleman/delaunay"

	"volflow/models"
)

// ErrInsufficientPoints marks a bucket whose scattered observations cannot
// support a triangulation (fewer than three distinct coordinates, or all
// collinear). Callers treat it as "no surface producible", never as fatal.
var ErrInsufficientPoints = errors.New("insufficient points to triangulate")

// Fitter fits scattered OTM observations onto a grid. Implementations must
// be deterministic functions of the input multiset: permuting the points
// must not change the result.
type Fitter interface {
	Fit(points []models.OtmPoint, grid Grid) ([][]float64, error)
}

// DelaunayFitter triangulates the scattered (moneyness, maturity) points and
// linearly interpolates each grid node from its containing triangle using
// barycentric weights. Nodes outside the convex hull of the observations are
// left NaN: extrapolated IV has no empirical support and would mislead the
// rendering.
type DelaunayFitter struct{}

// barycentricEps absorbs float error on triangle edges so hull-boundary
// nodes count as inside.
const barycentricEps = 1e-9

func (DelaunayFitter) Fit(points []models.OtmPoint, grid Grid) ([][]float64, error) {
	coords, ivs := collapseDuplicates(points)
	if len(coords) < 3 {
		return nil, fmt.Errorf("%w: %d distinct coordinates", ErrInsufficientPoints, len(coords))
	}

	tri, err := delaunay.Triangulate(coords)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientPoints, err)
	}
	if len(tri.Triangles) == 0 {
		return nil, fmt.Errorf("%w: degenerate geometry", ErrInsufficientPoints)
	}

	iv := make([][]float64, len(grid.Maturity))
	for ti, t := range grid.Maturity {
		row := make([]float64, len(grid.Moneyness))
		for mi, m := range grid.Moneyness {
			row[mi] = evaluate(tri, ivs, m, t)
		}
		iv[ti] = row
	}
	return iv, nil
}

// collapseDuplicates merges observations sharing the exact same coordinate
// into a single point carrying their mean IV, then orders the points by
// coordinate. Both steps make the fit independent of arrival order.
func collapseDuplicates(points []models.OtmPoint) ([]delaunay.Point, []float64) {
	type acc struct {
		sum float64
		n   int
	}
	merged := make(map[delaunay.Point]*acc, len(points))
	for _, p := range points {
		key := delaunay.Point{X: p.Moneyness, Y: p.DaysToExpiry}
		a, ok := merged[key]
		if !ok {
			a = &acc{}
			merged[key] = a
		}
		a.sum += p.IV
		a.n++
	}

	coords := make([]delaunay.Point, 0, len(merged))
	for key := range merged {
		coords = append(coords, key)
	}
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].X != coords[j].X {
			return coords[i].X < coords[j].X
		}
		return coords[i].Y < coords[j].Y
	})

	ivs := make([]float64, len(coords))
	for i, key := range coords {
		a := merged[key]
		ivs[i] = a.sum / float64(a.n)
	}
	return coords, ivs
}

// evaluate interpolates the value at (m, t) from the triangle containing it,
// or NaN when the point lies outside the triangulated hull.
func evaluate(tri *delaunay.Triangulation, ivs []float64, m, t float64) float64 {
	for i := 0; i+2 < len(tri.Triangles); i += 3 {
		ia, ib, ic := tri.Triangles[i], tri.Triangles[i+1], tri.Triangles[i+2]
		a, b, c := tri.Points[ia], tri.Points[ib], tri.Points[ic]

		denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
		if denom == 0 {
			continue
		}
		w1 := ((b.Y-c.Y)*(m-c.X) + (c.X-b.X)*(t-c.Y)) / denom
		w2 := ((c.Y-a.Y)*(m-c.X) + (a.X-c.X)*(t-c.Y)) / denom
		w3 := 1 - w1 - w2

		if w1 >= -barycentricEps && w2 >= -barycentricEps && w3 >= -barycentricEps {
			return w1*ivs[ia] + w2*ivs[ib] + w3*ivs[ic]
		}
	}
	return math.NaN()
}
