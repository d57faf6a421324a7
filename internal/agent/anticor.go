package agent

import (
	"math"

	"github.com/atlas-desktop/olps-agents/internal/numeric"
	"github.com/atlas-desktop/olps-agents/internal/obs"
	"go.uber.org/zap"
)

// Anticor bets against the correlation structure between two adjacent
// log-return windows: it moves mass from the outperforming asset of a
// positively correlated pair into the underperforming one.
type Anticor struct {
	BaseAgent

	Window int
}

func NewAnticor(logger *zap.Logger) *Anticor {
	return &Anticor{BaseAgent: NewBaseAgent("anticor", logger), Window: 5}
}

func (a *Anticor) SetParams(params map[string]any) error {
	if v, ok := params["window"]; ok {
		n, ok := v.(int)
		if !ok || n < 3 {
			return ErrInvalidParameter
		}
		a.Window = n
	}
	return nil
}

// Predict returns the two log-return windows flattened row-major as a
// diagnostic signal (L1 then L2), length 2*(window-2)*n.
func (a *Anticor) Predict(o *obs.Observation) ([]float64, error) {
	l1, l2, err := a.logReturnWindows(o)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(l1)*len(l1[0])+len(l2)*len(l2[0]))
	for _, row := range l1 {
		out = append(out, row...)
	}
	for _, row := range l2 {
		out = append(out, row...)
	}
	return out, nil
}

// logReturnWindows builds two non-overlapping (window-2) x n windows
// of consecutive-bar log10 returns from the past 2*window open prices.
func (a *Anticor) logReturnWindows(o *obs.Observation) ([][]float64, [][]float64, error) {
	n := o.N()
	rows := a.Window - 2
	if rows < 1 {
		return nil, nil, obsErr()
	}
	total := 2 * a.Window
	prices := make([][]float64, n)
	for i, sym := range o.Symbols {
		win, err := o.Window(sym, "open", total)
		if err != nil {
			return nil, nil, err
		}
		prices[i] = win
	}

	l1 := make([][]float64, rows)
	l2 := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		l1[r] = make([]float64, n)
		l2[r] = make([]float64, n)
		for i := 0; i < n; i++ {
			// L1 covers the first window of length `a.Window`,
			// L2 the second, each differenced consecutively.
			l1[r][i] = math.Log10(prices[i][r+1]) - math.Log10(prices[i][r])
			off := a.Window
			l2[r][i] = math.Log10(prices[i][off+r+1]) - math.Log10(prices[i][off+r])
		}
	}
	return l1, l2, nil
}

func obsErr() error { return obs.ErrInvalidObservation }

func (a *Anticor) Rebalance(o *obs.Observation) ([]float64, error) {
	n := o.N()
	if a.Step() == 0 {
		b := UniformFirstStep(n)
		a.Remember(b)
		return b, nil
	}
	prevB := a.Previous()
	if prevB == nil {
		prevB = UniformFirstStep(n)
	}

	l1, l2, err := a.logReturnWindows(o)
	if err != nil {
		return a.Recover(err)
	}

	m2 := colMeans(l2)
	s1 := colStdDevs(l1)
	s2 := colStdDevs(l2)
	corr := correlationMatrix(l1, l2, s1, s2)

	claim := make([][]float64, n)
	for i := range claim {
		claim[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if m2[i] > m2[j] && corr[i][j] > 0 {
				c := corr[i][j]
				if corr[i][i] < 0 {
					c += -corr[i][i]
				}
				if corr[j][j] < 0 {
					c += -corr[j][j]
				}
				claim[i][j] += c
			}
		}
	}

	transferOut := make([]float64, n) // sum over j of transfer[i][j]
	transferIn := make([]float64, n)  // sum over i of transfer[i][j]
	for i := 0; i < n; i++ {
		var rowSum float64
		for j := 0; j < n; j++ {
			rowSum += claim[i][j]
		}
		if rowSum == 0 {
			continue
		}
		for j := 0; j < n; j++ {
			t := prevB[i] * claim[i][j] / rowSum
			transferOut[i] += t
			transferIn[j] += t
		}
	}

	updated := make([]float64, n)
	for i := 0; i < n; i++ {
		updated[i] = prevB[i] + transferIn[i] - transferOut[i]
	}

	projNonFiat, err := numeric.ProjSimplex(updated)
	if err != nil {
		return a.Recover(err)
	}
	out := append(projNonFiat, 0)
	a.Remember(out)
	return out, nil
}

func colMeans(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	n := len(rows[0])
	out := make([]float64, n)
	for _, row := range rows {
		for i, v := range row {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(rows))
	}
	return out
}

func colStdDevs(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	n := len(rows[0])
	means := colMeans(rows)
	out := make([]float64, n)
	for _, row := range rows {
		for i, v := range row {
			d := v - means[i]
			out[i] += d * d
		}
	}
	for i := range out {
		out[i] = math.Sqrt(out[i] / float64(len(rows)))
		if out[i] == 0 {
			out[i] = math.Inf(1)
		}
	}
	return out
}

// correlationMatrix computes Z1^T Z2 / rows for z-scored L1, L2.
func correlationMatrix(l1, l2 [][]float64, s1, s2 []float64) [][]float64 {
	rows := len(l1)
	n := len(s1)
	m1 := colMeans(l1)
	m2 := colMeans(l2)

	z1 := zscore(l1, m1, s1)
	z2 := zscore(l2, m2, s2)

	c := make([][]float64, n)
	for i := range c {
		c[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			var s float64
			for r := 0; r < rows; r++ {
				s += z1[r][i] * z2[r][j]
			}
			c[i][j] = s / float64(rows)
		}
	}
	return c
}

func zscore(rows [][]float64, means, stds []float64) [][]float64 {
	out := make([][]float64, len(rows))
	for r, row := range rows {
		out[r] = make([]float64, len(row))
		for i, v := range row {
			out[r][i] = (v - means[i]) / stds[i]
		}
	}
	return out
}
