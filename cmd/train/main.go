// Command train fits a yield model from a historical season dataset and
// registers the resulting artifact.
//
// The dataset is a CSV with a header row and one row per county-season:
// fips, year, the 15 model features in canonical order, then the observed
// yield in bushels per acre.
//
// Usage:
//
//	go run ./cmd/train \
//	  -dataset data/training/seasons.csv \
//	  -version v2026-08-29 \
//	  -model-dir data/models \
//	  -activate
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/artem-biriukov/agriguard/internal/domain"
	"github.com/artem-biriukov/agriguard/internal/forecast"
)

func main() {
	if err := run(); err != nil {
		slog.Error("training failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	dataset := flag.String("dataset", "", "path to the training dataset CSV")
	version := flag.String("version", "", "version identifier for the trained artifact")
	modelDir := flag.String("model-dir", "data/models", "model registry directory")
	holdout := flag.Int("holdout", 1, "number of most recent years held out for validation")
	folds := flag.Int("folds", 3, "expanding-window folds for grid search")
	seed := flag.Int64("seed", 1, "random seed for subsampling")
	minR2 := flag.Float64("min-r2", 0.85, "validation floor enforced on activation")
	activate := flag.Bool("activate", false, "activate the artifact after registration")
	force := flag.Bool("force", false, "activate even below the validation floor")
	flag.Parse()

	if *dataset == "" || *version == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -dataset, -version")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	samples, err := loadSamples(*dataset)
	if err != nil {
		return err
	}
	logger.Info("dataset loaded", "path", *dataset, "samples", len(samples))

	artifact, err := forecast.Train(samples, forecast.TrainOptions{
		Version:      *version,
		HoldoutYears: *holdout,
		CVFolds:      *folds,
		Seed:         *seed,
	}, logger)
	if err != nil {
		return err
	}

	registry, err := forecast.OpenRegistry(*modelDir, *minR2, logger)
	if err != nil {
		return err
	}
	if err := registry.Register(artifact); err != nil {
		return err
	}
	logger.Info("artifact registered",
		"version", artifact.Version,
		"run_id", artifact.RunID,
		"validation_r2", artifact.Validation.R2,
		"validation_mae", artifact.Validation.MAE,
	)

	if *activate {
		if err := registry.Activate(artifact.Version, *force); err != nil {
			return err
		}
		logger.Info("artifact activated", "version", artifact.Version)
	}
	return nil
}

// loadSamples parses the training CSV: fips, year, 15 features, yield.
func loadSamples(path string) ([]forecast.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	wantCols := 2 + domain.NumFeatures + 1
	if len(header) != wantCols {
		return nil, fmt.Errorf("dataset has %d columns, want %d", len(header), wantCols)
	}

	var samples []forecast.Sample
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset line %d: %w", line, err)
		}

		year, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, fmt.Errorf("dataset line %d: bad year %q", line, row[1])
		}

		v := domain.FeatureVector{FIPS: row[0], Year: year}
		for i := 0; i < domain.NumFeatures; i++ {
			val, err := strconv.ParseFloat(row[2+i], 64)
			if err != nil {
				return nil, fmt.Errorf("dataset line %d: bad %s %q", line, domain.FeatureNames[i], row[2+i])
			}
			v.Values[i] = val
		}

		yield, err := strconv.ParseFloat(row[wantCols-1], 64)
		if err != nil {
			return nil, fmt.Errorf("dataset line %d: bad yield %q", line, row[wantCols-1])
		}

		samples = append(samples, forecast.Sample{Features: v, Yield: yield})
	}
	return samples, nil
}
