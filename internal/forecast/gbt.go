// Package forecast implements the yield regression model: a gradient-boosted
// regression tree ensemble for the point estimate plus two pinball-loss
// ensembles for the 5th and 95th percentile uncertainty band, trained on a
// chronological split and served from versioned artifacts.
package forecast

import (
	"math"
	"math/rand"
	"sort"
)

// Params are the boosting hyperparameters explored by the grid search.
type Params struct {
	Trees        int     `json:"trees" yaml:"trees"`
	MaxDepth     int     `json:"max_depth" yaml:"max_depth"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	Subsample    float64 `json:"subsample" yaml:"subsample"`
	MinLeaf      int     `json:"min_leaf" yaml:"min_leaf"`
}

// DefaultParams is the fallback configuration when grid search is skipped.
var DefaultParams = Params{Trees: 200, MaxDepth: 3, LearningRate: 0.1, Subsample: 0.8, MinLeaf: 2}

// ensemble is one boosted tree ensemble. Quantile is 0 for the squared-loss
// point model and the target percentile for pinball-loss models.
type ensemble struct {
	Base         float64     `json:"base"`
	LearningRate float64     `json:"learning_rate"`
	Quantile     float64     `json:"quantile,omitempty"`
	Trees        []*treeNode `json:"trees"`
}

// trainEnsemble boosts regression trees against the residuals. For the point
// model (quantile 0) trees fit squared-loss residuals with mean leaves. For a
// quantile model the base and leaf values are residual quantiles, the
// standard gradient boosting treatment of pinball loss.
func trainEnsemble(x [][]float64, y []float64, p Params, q float64, rng *rand.Rand) *ensemble {
	e := &ensemble{LearningRate: p.LearningRate, Quantile: q}

	var leaf leafValue
	if q > 0 {
		e.Base = quantileOf(y, q)
		leaf = func(res []float64) float64 { return quantileOf(res, q) }
	} else {
		e.Base = meanOf(y)
		leaf = meanOf
	}

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = e.Base
	}

	residuals := make([]float64, len(y))
	tp := treeParams{maxDepth: p.MaxDepth, minLeaf: p.MinLeaf}

	for t := 0; t < p.Trees; t++ {
		for i := range y {
			residuals[i] = y[i] - pred[i]
		}

		rows := sampleRows(len(y), p.Subsample, rng)
		tree := buildTree(x, residuals, rows, tp, leaf)
		e.Trees = append(e.Trees, tree)

		for i := range y {
			pred[i] += p.LearningRate * tree.predict(x[i])
		}
	}
	return e
}

func (e *ensemble) predict(x []float64) float64 {
	out := e.Base
	for _, t := range e.Trees {
		out += e.LearningRate * t.predict(x)
	}
	return out
}

// sampleRows draws a subsample fraction of row indices without replacement.
func sampleRows(n int, fraction float64, rng *rand.Rand) []int {
	if fraction >= 1 || fraction <= 0 {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}

	k := int(math.Ceil(fraction * float64(n)))
	if k < 2 {
		k = 2
	}
	perm := rng.Perm(n)
	rows := perm[:k]
	sort.Ints(rows)
	return rows
}

func meanOf(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// quantileOf returns the q-quantile using linear interpolation between order
// statistics.
func quantileOf(vals []float64, q float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
