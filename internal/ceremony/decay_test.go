package ceremony

import (
	"math"
	"testing"
)

func TestDecayFixedPoints(t *testing.T) {
	if got := Decay(0, 48, 0.15); got != 0 {
		t.Errorf("Decay(0) = %v, want 0", got)
	}
	if got := Decay(1, 48, 0.15); got != 1 {
		t.Errorf("Decay(1) = %v, want 1", got)
	}
}

func TestDecayZeroHoursIsIdentity(t *testing.T) {
	for _, v := range []float64{0, 0.25, 0.5, 0.9, 1} {
		if got := Decay(v, 0, 0.15); got != v {
			t.Errorf("Decay(%v, 0h) = %v, want identity", v, got)
		}
	}
}

func TestDecayShrinksMidrangeValues(t *testing.T) {
	for _, v := range []float64{0.1, 0.5, 0.9} {
		got := Decay(v, 24, 0.15)
		if got >= v {
			t.Errorf("Decay(%v, 24h) = %v, want strictly smaller", v, got)
		}
		if got < 0 {
			t.Errorf("Decay(%v, 24h) = %v, below 0", v, got)
		}
	}
}

func TestDecayLongerGapsDecayMore(t *testing.T) {
	day := Decay(0.5, 24, 0.15)
	week := Decay(0.5, 168, 0.15)
	if week >= day {
		t.Errorf("week decay %v not below day decay %v", week, day)
	}
}

func TestDecayClampsInput(t *testing.T) {
	if got := Decay(1.5, 24, 0.15); got > 1 {
		t.Errorf("Decay(1.5) = %v, exceeds 1", got)
	}
	if got := Decay(-0.5, 24, 0.15); got != 0 {
		t.Errorf("Decay(-0.5) = %v, want 0", got)
	}
}

func TestDecayLogarithmicTimeGrowth(t *testing.T) {
	// The per-step loss grows like log(1+h), not linearly.
	loss24 := 0.5 - Decay(0.5, 24, 0.15)
	loss48 := 0.5 - Decay(0.5, 48, 0.15)
	wantRatio := math.Log1p(48) / math.Log1p(24)
	gotRatio := loss48 / loss24
	if math.Abs(gotRatio-wantRatio) > 1e-9 {
		t.Errorf("loss ratio = %v, want %v", gotRatio, wantRatio)
	}
}
