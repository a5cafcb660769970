package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite clamps to zero", []float64{1, 2}, []float64{-1, -2}, 0},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
		{"zero norm", []float64{0, 0}, []float64{1, 1}, 0},
		{"nan component", []float64{math.NaN(), 1}, []float64{1, 1}, 0},
		{"inf component", []float64{math.Inf(1), 1}, []float64{1, 1}, 0},
		{"scaled", []float64{1, 1}, []float64{3, 3}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosine_SymmetricAndBounded(t *testing.T) {
	vectors := [][]float64{
		{0.1, 0.9, -0.3},
		{-0.5, 0.2, 0.8},
		{1, 1, 1},
		{0.0001, -7, 2},
	}
	for _, a := range vectors {
		for _, b := range vectors {
			ab, ba := Cosine(a, b), Cosine(b, a)
			assert.InDelta(t, ab, ba, 1e-12)
			assert.GreaterOrEqual(t, ab, 0.0)
			assert.LessOrEqual(t, ab, 1.0)
		}
	}
}

func TestCosine_SelfSimilarity(t *testing.T) {
	e := []float64{0.12, -0.4, 0.33, 0.9, 0.05}
	assert.InDelta(t, 1.0, Cosine(e, e), 1e-9)
}
