package surface

import (
	"volflow/config"
)

// Grid holds the node positions of the target interpolation grid. The
// moneyness axis spans the configured moneyness range, the maturity axis the
// configured maturity window in days.
type Grid struct {
	Moneyness []float64
	Maturity  []float64
}

func NewGrid(cfg config.SurfaceConfig) Grid {
	return Grid{
		Moneyness: linspace(cfg.MoneynessMin, cfg.MoneynessMax, cfg.MoneynessNodes),
		Maturity:  linspace(cfg.MaturityMin, cfg.MaturityMax, cfg.MaturityNodes),
	}
}

// linspace returns n evenly spaced values from min to max inclusive.
func linspace(min, max float64, n int) []float64 {
	if n < 2 {
		return []float64{min}
	}
	out := make([]float64, n)
	step := (max - min) / float64(n-1)
	for i := 0; i < n-1; i++ {
		out[i] = min + float64(i)*step
	}
	out[n-1] = max
	return out
}
