package forecast

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/artem-biriukov/agriguard/internal/domain"
)

// FeatureRange is the observed [min, max] of one feature across the training
// matrix, used to flag extrapolation at prediction time.
type FeatureRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ValidationMetrics summarizes artifact quality on the chronological holdout.
type ValidationMetrics struct {
	R2     float64 `json:"r2"`
	MAE    float64 `json:"mae"`
	RMSE   float64 `json:"rmse"`
	MeanCV float64 `json:"mean_cv_r2"`
}

// Artifact is one deployable model unit: the point ensemble and both quantile
// ensembles, versioned together with their training metadata. Artifacts are
// immutable after training; serving swaps whole artifacts atomically.
type Artifact struct {
	Version   string    `json:"version"`
	RunID     string    `json:"run_id"`
	TrainedAt time.Time `json:"trained_at"`

	Params        Params  `json:"params"`
	LowerQuantile float64 `json:"lower_quantile"`
	UpperQuantile float64 `json:"upper_quantile"`

	FeatureNames []string                         `json:"feature_names"`
	Ranges       [domain.NumFeatures]FeatureRange `json:"feature_ranges"`
	Validation   ValidationMetrics                `json:"validation"`

	Point *ensemble `json:"point"`
	Lower *ensemble `json:"lower"`
	Upper *ensemble `json:"upper"`
}

// Filename returns the artifact's on-disk name within a registry directory.
func (a *Artifact) Filename() string {
	return a.Version + ".json"
}

// Save writes the artifact to dir. The write goes through a temp file and
// rename so a concurrent load never observes a partial artifact.
func (a *Artifact) Save(dir string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", a.Version, err)
	}

	tmp, err := os.CreateTemp(dir, a.Version+".*.tmp")
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", a.Version, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save artifact %s: %w", a.Version, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save artifact %s: %w", a.Version, err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, a.Filename())); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save artifact %s: %w", a.Version, err)
	}
	return nil
}

// LoadArtifact reads and validates one artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	if a.Version == "" || a.Point == nil || a.Lower == nil || a.Upper == nil {
		return nil, fmt.Errorf("artifact %s is incomplete", path)
	}
	if len(a.FeatureNames) != domain.NumFeatures {
		return nil, fmt.Errorf("artifact %s has %d features, want %d", path, len(a.FeatureNames), domain.NumFeatures)
	}
	return &a, nil
}
