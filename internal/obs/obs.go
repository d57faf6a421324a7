// Package obs adapts the two-level-keyed tabular observation into the
// plain vectors and series the agents consume: portfolio vectors,
// price-relative vectors, moving averages, and local extrema.
package obs

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidObservation is returned when an observation is malformed:
// missing a symbol/field, too short a history, or a non-finite value.
var ErrInvalidObservation = errors.New("obs: invalid observation")

// Observation is a time-indexed, two-level-keyed (symbol, field) table.
// Rows are ordered ascending by time; the last row is the most recent.
// Values are decimal at the boundary (§3) and converted to float64 once
// per extraction for agent math.
type Observation struct {
	// Symbols lists the non-fiat assets in a fixed order, a1..an.
	Symbols []string
	// Fiat is the quote-asset key.
	Fiat string
	// Series maps symbol -> field -> ascending time series.
	// Non-fiat symbols carry "open", "close", and a field named after
	// the symbol itself (current holding quantity). Fiat carries a
	// single balance field under its own key.
	Series map[string]map[string][]decimal.Decimal
}

// N returns the number of non-fiat assets.
func (o *Observation) N() int { return len(o.Symbols) }

func (o *Observation) field(symbol, field string) ([]decimal.Decimal, error) {
	sym, ok := o.Series[symbol]
	if !ok {
		return nil, ErrInvalidObservation
	}
	series, ok := sym[field]
	if !ok || len(series) == 0 {
		return nil, ErrInvalidObservation
	}
	return series, nil
}

// Last returns the float64 value of the latest row of field on symbol.
func (o *Observation) Last(symbol, field string) (float64, error) {
	series, err := o.field(symbol, field)
	if err != nil {
		return 0, err
	}
	return toFloat(series[len(series)-1])
}

// At returns the float64 value offset rows back from the latest (0 =
// latest, 1 = previous, ...).
func (o *Observation) At(symbol, field string, back int) (float64, error) {
	series, err := o.field(symbol, field)
	if err != nil {
		return 0, err
	}
	idx := len(series) - 1 - back
	if idx < 0 {
		return 0, ErrInvalidObservation
	}
	return toFloat(series[idx])
}

// Window returns the last n float64 values of field on symbol, ascending.
func (o *Observation) Window(symbol, field string, n int) ([]float64, error) {
	series, err := o.field(symbol, field)
	if err != nil {
		return nil, err
	}
	if len(series) < n {
		return nil, ErrInvalidObservation
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := toFloat(series[len(series)-n+i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func toFloat(d decimal.Decimal) (float64, error) {
	f, _ := d.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidObservation
	}
	return f, nil
}

// PortfolioVector computes b from current holdings times open prices,
// normalized by total value including fiat. Length n+1, fiat last.
func (o *Observation) PortfolioVector() ([]float64, error) {
	n := o.N()
	values := make([]float64, n+1)
	var total float64
	for i, sym := range o.Symbols {
		holding, err := o.Last(sym, sym)
		if err != nil {
			return nil, err
		}
		openPrice, err := o.Last(sym, "open")
		if err != nil {
			return nil, err
		}
		v := holding * openPrice
		values[i] = v
		total += v
	}
	balance, err := o.Last(o.Fiat, o.Fiat)
	if err != nil {
		return nil, err
	}
	values[n] = balance
	total += balance

	if total <= 0 {
		return nil, ErrInvalidObservation
	}
	out := make([]float64, n+1)
	for i, v := range values {
		out[i] = v / total
	}
	return out, nil
}

// PriceRelativeMode selects the reference direction of PriceRelative.
type PriceRelativeMode int

const (
	// RatioNowOverPrev is open(t)/open(t-1).
	RatioNowOverPrev PriceRelativeMode = iota
	// RatioPrevOverNow is open(t-1)/open(t), PAMR's reciprocal form.
	RatioPrevOverNow
	// DiffRatioMinusOne is open(t-1)/open(t) - 1, STMR's form.
	DiffRatioMinusOne
	// MaOverNow is mean(open over window excluding current)/open(t), OLMAR's form.
	MaOverNow
)

// PriceRelative computes x, length n+1, fiat slot fixed at the mode's
// neutral element (1 for ratio modes, 0 for DiffRatioMinusOne). window
// is only consulted for MaOverNow.
func (o *Observation) PriceRelative(mode PriceRelativeMode, window int) ([]float64, error) {
	n := o.N()
	x := make([]float64, n+1)
	for i, sym := range o.Symbols {
		now, err := o.At(sym, "open", 0)
		if err != nil {
			return nil, err
		}
		switch mode {
		case RatioNowOverPrev:
			prev, err := o.At(sym, "open", 1)
			if err != nil {
				return nil, err
			}
			x[i] = prev0(now, prev)
		case RatioPrevOverNow:
			prev, err := o.At(sym, "open", 1)
			if err != nil {
				return nil, err
			}
			x[i] = prev0(prev, now)
		case DiffRatioMinusOne:
			prev, err := o.At(sym, "open", 1)
			if err != nil {
				return nil, err
			}
			x[i] = prev0(prev, now) - 1
		case MaOverNow:
			win, err := o.Window(sym, "open", window+1)
			if err != nil {
				return nil, err
			}
			hist := win[:len(win)-1] // exclude current
			mean := Mean(hist)
			x[i] = mean / now
		default:
			return nil, ErrInvalidObservation
		}
	}
	if mode == DiffRatioMinusOne {
		x[n] = 0
	} else {
		x[n] = 1
	}
	return x, nil
}

func prev0(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Mean returns the arithmetic mean of series, 0 for an empty series.
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var s float64
	for _, v := range series {
		s += v
	}
	return s / float64(len(series))
}

// StdDev returns the population standard deviation of series.
func StdDev(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	m := Mean(series)
	var ss float64
	for _, v := range series {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(series)))
}

// MAKind selects the moving-average family.
type MAKind int

const (
	Simple MAKind = iota
	Exponential
	KAMA
)

// MovingAverage computes the moving average of kind over the last
// window points of series, returning the latest averaged value.
func MovingAverage(series []float64, kind MAKind, window int) (float64, error) {
	if window < 1 || len(series) < window {
		return 0, ErrInvalidObservation
	}
	tail := series[len(series)-window:]
	switch kind {
	case Simple:
		return Mean(tail), nil
	case Exponential:
		alpha := 2.0 / (float64(window) + 1.0)
		ema := tail[0]
		for _, v := range tail[1:] {
			ema = alpha*v + (1-alpha)*ema
		}
		return ema, nil
	case KAMA:
		return kama(tail), nil
	default:
		return 0, ErrInvalidObservation
	}
}

// kama computes Kaufman's Adaptive Moving Average over series, a
// volatility-scaled blend between a fast and slow EMA constant.
func kama(series []float64) float64 {
	n := len(series)
	if n < 2 {
		return series[len(series)-1]
	}
	change := math.Abs(series[n-1] - series[0])
	var volatility float64
	for i := 1; i < n; i++ {
		volatility += math.Abs(series[i] - series[i-1])
	}
	er := 0.0
	if volatility > 0 {
		er = change / volatility
	}
	fastest := 2.0 / (2.0 + 1.0)
	slowest := 2.0 / (30.0 + 1.0)
	sc := math.Pow(er*(fastest-slowest)+slowest, 2)

	kama := series[0]
	for i := 1; i < n; i++ {
		kama = kama + sc*(series[i]-kama)
	}
	return kama
}

// LocalExtremes returns indices where series[i] is strictly greater
// (greater=true) or strictly less (greater=false) than every neighbor
// within order on both sides. The final index is always appended, even
// when it is not itself a strict extremum, so callers always have a
// usable "current" anchor.
func LocalExtremes(series []float64, order int, greater bool) []int {
	n := len(series)
	if n == 0 {
		return nil
	}
	var out []int
	for i := 0; i < n; i++ {
		if isExtreme(series, i, order, greater) {
			out = append(out, i)
		}
	}
	if len(out) == 0 || out[len(out)-1] != n-1 {
		out = append(out, n-1)
	}
	return out
}

func isExtreme(series []float64, i, order int, greater bool) bool {
	n := len(series)
	for d := 1; d <= order; d++ {
		if i-d >= 0 {
			if greater && series[i] <= series[i-d] {
				return false
			}
			if !greater && series[i] >= series[i-d] {
				return false
			}
		}
		if i+d < n {
			if greater && series[i] <= series[i+d] {
				return false
			}
			if !greater && series[i] >= series[i+d] {
				return false
			}
		}
	}
	return true
}
