package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	if norm := NormalizeL2(x); math.Abs(norm-5) > 1e-9 {
		t.Errorf("returned norm = %f, want 5", norm)
	}
	if math.Abs(float64(x[0])-0.6) > 1e-6 || math.Abs(float64(x[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeL2([3 4]) = %v, want [0.6 0.8]", x)
	}
	var sum float64
	for _, v := range x {
		sum += float64(v * v)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("norm^2 = %f, want 1", sum)
	}
}

func TestNormalizeL2_zeroUnchanged(t *testing.T) {
	x := []float32{0, 0, 0}
	if norm := NormalizeL2(x); norm != 0 {
		t.Errorf("returned norm = %f, want 0", norm)
	}
	for i, v := range x {
		if v != 0 {
			t.Errorf("x[%d] = %f, want 0", i, v)
		}
	}
	NormalizeL2(nil)
}
