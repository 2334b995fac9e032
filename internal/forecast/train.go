package forecast

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"github.com/artem-biriukov/agriguard/internal/domain"
	"github.com/google/uuid"
)

// Sample pairs one season's feature vector with its observed yield.
type Sample struct {
	Features domain.FeatureVector
	Yield    float64
}

// TrainOptions configures a training run.
type TrainOptions struct {
	Version string

	// HoldoutYears is the number of most recent distinct years reserved for
	// validation. The split is always chronological; samples are never
	// shuffled across the train/validation boundary.
	HoldoutYears int

	// Grid lists the hyperparameter candidates. Empty means DefaultParams
	// without a search.
	Grid []Params

	// CVFolds is the number of expanding-window folds used to score grid
	// candidates by mean cross-validated R².
	CVFolds int

	LowerQuantile float64
	UpperQuantile float64

	Seed int64
}

// DefaultGrid is the hyperparameter search space: tree count, depth, learning
// rate, and subsample fraction.
var DefaultGrid = []Params{
	{Trees: 100, MaxDepth: 3, LearningRate: 0.1, Subsample: 0.8, MinLeaf: 2},
	{Trees: 200, MaxDepth: 3, LearningRate: 0.1, Subsample: 0.8, MinLeaf: 2},
	{Trees: 200, MaxDepth: 3, LearningRate: 0.05, Subsample: 0.8, MinLeaf: 2},
	{Trees: 200, MaxDepth: 4, LearningRate: 0.05, Subsample: 0.8, MinLeaf: 2},
	{Trees: 300, MaxDepth: 4, LearningRate: 0.05, Subsample: 1.0, MinLeaf: 2},
}

// Train fits the point model and both quantile models on a chronological
// split and returns a complete, versioned artifact.
func Train(samples []Sample, opts TrainOptions, logger *slog.Logger) (*Artifact, error) {
	if len(samples) < 10 {
		return nil, fmt.Errorf("training requires at least 10 samples, got %d", len(samples))
	}
	if opts.Version == "" {
		return nil, fmt.Errorf("training requires a model version")
	}
	if opts.LowerQuantile == 0 {
		opts.LowerQuantile = 0.05
	}
	if opts.UpperQuantile == 0 {
		opts.UpperQuantile = 0.95
	}
	if opts.HoldoutYears <= 0 {
		opts.HoldoutYears = 1
	}
	if opts.CVFolds <= 0 {
		opts.CVFolds = 3
	}

	// Chronological order: earliest years first. Stable so same-year samples
	// keep their input order.
	ordered := append([]Sample(nil), samples...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Features.Year < ordered[j].Features.Year
	})

	trainSet, holdout := splitByYear(ordered, opts.HoldoutYears)
	if len(trainSet) == 0 || len(holdout) == 0 {
		return nil, fmt.Errorf("chronological split left an empty partition (train=%d holdout=%d)", len(trainSet), len(holdout))
	}

	xTrain, yTrain := matrix(trainSet)
	rng := rand.New(rand.NewSource(opts.Seed))

	params, meanCV := selectParams(xTrain, yTrain, opts, rng, logger)
	if math.IsNaN(meanCV) || math.IsInf(meanCV, 0) {
		// Too few samples to fold; the artifact must stay JSON-encodable.
		meanCV = 0
	}

	logger.Info("training final ensembles",
		"version", opts.Version,
		"samples", len(trainSet),
		"holdout", len(holdout),
		"trees", params.Trees,
		"max_depth", params.MaxDepth,
		"learning_rate", params.LearningRate,
		"subsample", params.Subsample,
	)

	point := trainEnsemble(xTrain, yTrain, params, 0, rng)
	lower := trainEnsemble(xTrain, yTrain, params, opts.LowerQuantile, rng)
	upper := trainEnsemble(xTrain, yTrain, params, opts.UpperQuantile, rng)

	xHold, yHold := matrix(holdout)
	preds := make([]float64, len(xHold))
	for i, x := range xHold {
		preds[i] = point.predict(x)
	}

	a := &Artifact{
		Version:       opts.Version,
		RunID:         uuid.NewString(),
		TrainedAt:     domain.Now(),
		Params:        params,
		LowerQuantile: opts.LowerQuantile,
		UpperQuantile: opts.UpperQuantile,
		FeatureNames:  domain.FeatureNames[:],
		Ranges:        featureRanges(xTrain),
		Validation: ValidationMetrics{
			R2:     rSquared(yHold, preds),
			MAE:    meanAbsError(yHold, preds),
			RMSE:   rootMeanSqError(yHold, preds),
			MeanCV: meanCV,
		},
		Point: point,
		Lower: lower,
		Upper: upper,
	}

	logger.Info("training complete",
		"version", a.Version,
		"run_id", a.RunID,
		"validation_r2", a.Validation.R2,
		"validation_mae", a.Validation.MAE,
		"validation_rmse", a.Validation.RMSE,
		"mean_cv_r2", a.Validation.MeanCV,
	)
	return a, nil
}

// selectParams grid-searches by mean R² over expanding-window chronological
// folds. A single-candidate grid skips the search.
func selectParams(x [][]float64, y []float64, opts TrainOptions, rng *rand.Rand, logger *slog.Logger) (Params, float64) {
	grid := opts.Grid
	if len(grid) == 0 {
		grid = []Params{DefaultParams}
	}
	if len(grid) == 1 {
		return grid[0], crossValidate(x, y, grid[0], opts.CVFolds, rng)
	}

	best := grid[0]
	bestScore := math.Inf(-1)
	for _, candidate := range grid {
		score := crossValidate(x, y, candidate, opts.CVFolds, rng)
		logger.Debug("grid search candidate",
			"trees", candidate.Trees,
			"max_depth", candidate.MaxDepth,
			"learning_rate", candidate.LearningRate,
			"subsample", candidate.Subsample,
			"mean_cv_r2", score,
		)
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	return best, bestScore
}

// crossValidate scores one candidate with expanding-window folds: each fold
// trains on all earlier samples and validates on the next contiguous slice,
// so validation data is always strictly later than its training data.
func crossValidate(x [][]float64, y []float64, p Params, folds int, rng *rand.Rand) float64 {
	n := len(y)
	chunk := n / (folds + 1)
	if chunk < 2 {
		return math.Inf(-1)
	}

	var total float64
	var scored int
	for fold := 1; fold <= folds; fold++ {
		trainEnd := chunk * fold
		valEnd := trainEnd + chunk
		if fold == folds {
			valEnd = n
		}

		e := trainEnsemble(x[:trainEnd], y[:trainEnd], p, 0, rng)
		preds := make([]float64, valEnd-trainEnd)
		for i, row := range x[trainEnd:valEnd] {
			preds[i] = e.predict(row)
		}
		total += rSquared(y[trainEnd:valEnd], preds)
		scored++
	}
	return total / float64(scored)
}

// splitByYear reserves the most recent holdoutYears distinct years for
// validation. samples must already be in chronological order.
func splitByYear(samples []Sample, holdoutYears int) (train, holdout []Sample) {
	years := map[int]bool{}
	for _, s := range samples {
		years[s.Features.Year] = true
	}
	distinct := make([]int, 0, len(years))
	for y := range years {
		distinct = append(distinct, y)
	}
	sort.Ints(distinct)

	if holdoutYears >= len(distinct) {
		holdoutYears = len(distinct) - 1
	}
	if holdoutYears < 1 {
		return samples, nil
	}
	cutoff := distinct[len(distinct)-holdoutYears]

	for _, s := range samples {
		if s.Features.Year >= cutoff {
			holdout = append(holdout, s)
		} else {
			train = append(train, s)
		}
	}
	return train, holdout
}

func matrix(samples []Sample) ([][]float64, []float64) {
	x := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i, s := range samples {
		row := make([]float64, domain.NumFeatures)
		copy(row, s.Features.Values[:])
		x[i] = row
		y[i] = s.Yield
	}
	return x, y
}

func featureRanges(x [][]float64) [domain.NumFeatures]FeatureRange {
	var ranges [domain.NumFeatures]FeatureRange
	for f := 0; f < domain.NumFeatures; f++ {
		ranges[f] = FeatureRange{Min: x[0][f], Max: x[0][f]}
		for _, row := range x[1:] {
			if row[f] < ranges[f].Min {
				ranges[f].Min = row[f]
			}
			if row[f] > ranges[f].Max {
				ranges[f].Max = row[f]
			}
		}
	}
	return ranges
}

func rSquared(actual, predicted []float64) float64 {
	mean := meanOf(actual)
	var ssRes, ssTot float64
	for i := range actual {
		ssRes += (actual[i] - predicted[i]) * (actual[i] - predicted[i])
		ssTot += (actual[i] - mean) * (actual[i] - mean)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

func meanAbsError(actual, predicted []float64) float64 {
	var sum float64
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

func rootMeanSqError(actual, predicted []float64) float64 {
	var sum float64
	for i := range actual {
		d := actual[i] - predicted[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(actual)))
}
