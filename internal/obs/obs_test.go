package obs_test

import (
	"math"
	"testing"

	"github.com/atlas-desktop/olps-agents/internal/obs"
	"github.com/shopspring/decimal"
)

func dseries(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

// scenario 1: two-asset basket {BTC, USDT}, open [100,101,102,103], uniform holdings.
func newScenario1() *obs.Observation {
	return &obs.Observation{
		Symbols: []string{"BTC"},
		Fiat:    "USDT",
		Series: map[string]map[string][]decimal.Decimal{
			"BTC": {
				"open": dseries(100, 101, 102, 103),
				"BTC":  dseries(1, 1, 1, 1),
			},
			"USDT": {
				"USDT": dseries(0, 0, 0, 0),
			},
		},
	}
}

func TestPortfolioVectorAllInAsset(t *testing.T) {
	o := newScenario1()
	b, err := o.PortfolioVector()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(b[0]-1) > 1e-9 || math.Abs(b[1]) > 1e-9 {
		t.Errorf("expected (1,0), got %v", b)
	}
}

func TestPriceRelativeRatioNowOverPrev(t *testing.T) {
	o := newScenario1()
	x, err := o.PriceRelative(obs.RatioNowOverPrev, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 103.0 / 102.0
	if math.Abs(x[0]-want) > 1e-9 {
		t.Errorf("want %v got %v", want, x[0])
	}
	if x[1] != 1 {
		t.Errorf("fiat slot should be 1, got %v", x[1])
	}
}

func TestPriceRelativeReciprocal(t *testing.T) {
	o := newScenario1()
	x, err := o.PriceRelative(obs.RatioPrevOverNow, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 102.0 / 103.0
	if math.Abs(x[0]-want) > 1e-9 {
		t.Errorf("want %v got %v", want, x[0])
	}
}

func TestMovingAverageSimple(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5}
	v, err := obs.MovingAverage(series, obs.Simple, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(v-4) > 1e-9 {
		t.Errorf("want 4, got %v", v)
	}
}

func TestMovingAverageConstantSeries(t *testing.T) {
	series := []float64{100, 100, 100, 100}
	for _, kind := range []obs.MAKind{obs.Simple, obs.Exponential, obs.KAMA} {
		v, err := obs.MovingAverage(series, kind, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(v-100) > 1e-9 {
			t.Errorf("kind %v: want 100, got %v", kind, v)
		}
	}
}

func TestLocalExtremesAppendsFinalPoint(t *testing.T) {
	series := []float64{1, 5, 2, 7, 3, 6}
	idx := obs.LocalExtremes(series, 1, true)
	if idx[len(idx)-1] != len(series)-1 {
		t.Errorf("expected final index appended, got %v", idx)
	}
}

func TestStdDevConstantSeriesIsZero(t *testing.T) {
	if sd := obs.StdDev([]float64{5, 5, 5}); sd != 0 {
		t.Errorf("expected 0, got %v", sd)
	}
}
