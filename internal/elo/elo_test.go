package elo

import (
	"math"
	"testing"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestExpected(t *testing.T) {
	if got := Expected(1500, 1500); got != 0.5 {
		t.Errorf("Expected(1500, 1500) = %v; want 0.5", got)
	}
	if got := Expected(1600, 1500); !approx(got, 0.6401, 0.0001) {
		t.Errorf("Expected(1600, 1500) = %v; want ~0.6401", got)
	}

	ratings := []float64{100, 800, 1200, 1500, 1800, 2400, 3000}
	for _, u := range ratings {
		for _, i := range ratings {
			e := Expected(u, i)
			if e <= 0 || e >= 1 {
				t.Errorf("Expected(%v, %v) = %v; want strictly in (0, 1)", u, i, e)
			}
			if sym := Expected(i, u); !approx(e+sym, 1, 1e-12) {
				t.Errorf("Expected(%v,%v)+Expected(%v,%v) = %v; want 1", u, i, i, u, e+sym)
			}
		}
	}
}

func TestComputeDeltas(t *testing.T) {
	engine := DefaultEngine()

	tests := []struct {
		name        string
		user, item  float64
		outcome     float64
		wantUserPos bool
	}{
		{"correct equal", 1500, 1500, 1, true},
		{"correct stronger user", 1600, 1500, 1, true},
		{"correct weaker user", 1200, 1800, 1, true},
		{"incorrect equal", 1500, 1500, 0, false},
		{"incorrect stronger user", 2000, 1200, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ud, id := engine.ComputeDeltas(tt.user, tt.item, tt.outcome)
			if tt.wantUserPos && (ud <= 0 || id >= 0) {
				t.Errorf("ComputeDeltas() = (%v, %v); want user > 0, item < 0", ud, id)
			}
			if !tt.wantUserPos && (ud >= 0 || id <= 0) {
				t.Errorf("ComputeDeltas() = (%v, %v); want user < 0, item > 0", ud, id)
			}
			if !approx(ud, -id, 1e-12) {
				t.Errorf("symmetric K should give opposite deltas, got %v and %v", ud, id)
			}
		})
	}
}

func TestComputeDeltas_NumericExample(t *testing.T) {
	ud, _ := DefaultEngine().ComputeDeltas(1600, 1500, 1)
	if !approx(ud, 7.2, 0.05) {
		t.Errorf("userDelta = %v; want ~7.2", ud)
	}
}

func TestComputeDeltas_Asymmetric(t *testing.T) {
	engine := Engine{KUser: 32, KItem: 8, Min: DefaultMin, Max: DefaultMax}
	ud, id := engine.ComputeDeltas(1500, 1500, 1)
	if ud != 16 {
		t.Errorf("userDelta = %v; want 16", ud)
	}
	if id != -4 {
		t.Errorf("itemDelta = %v; want -4", id)
	}
}

func TestComputeDeltas_ClampsOutcome(t *testing.T) {
	engine := DefaultEngine()
	hi, _ := engine.ComputeDeltas(1500, 1500, 7)
	one, _ := engine.ComputeDeltas(1500, 1500, 1)
	if hi != one {
		t.Errorf("outcome above 1 gave %v; want %v", hi, one)
	}
}

func TestApply(t *testing.T) {
	engine := DefaultEngine()

	tests := []struct {
		current, delta, want float64
	}{
		{1500, 10, 1510},
		{2995, 10, 3000},
		{105, -10, 100},
	}
	for _, tt := range tests {
		if got := engine.Apply(tt.current, tt.delta); got != tt.want {
			t.Errorf("Apply(%v, %v) = %v; want %v", tt.current, tt.delta, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultEngine().Validate(); err != nil {
		t.Errorf("DefaultEngine().Validate() error = %v", err)
	}
	if err := (Engine{KUser: 0, KItem: 20, Min: 100, Max: 3000}).Validate(); err == nil {
		t.Error("zero K should be rejected")
	}
	if err := (Engine{KUser: 20, KItem: 20, Min: 3000, Max: 100}).Validate(); err == nil {
		t.Error("inverted range should be rejected")
	}
}
