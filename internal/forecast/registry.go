package forecast

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artem-biriukov/agriguard/internal/domain"
	"gopkg.in/yaml.v3"
)

const manifestName = "manifest.yaml"

// manifest records the registry directory contents and the active version.
type manifest struct {
	Active   string         `yaml:"active"`
	Versions []versionEntry `yaml:"versions"`
}

type versionEntry struct {
	Version      string    `yaml:"version"`
	TrainedAt    time.Time `yaml:"trained_at"`
	ValidationR2 float64   `yaml:"validation_r2"`
}

// VersionInfo is the external view of one registered model version.
type VersionInfo struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	ValidationR2 float64   `json:"validation_r2"`
	Active       bool      `json:"active"`
}

// Registry tracks trained artifacts in a directory and serves the active one.
// The active artifact is held behind an atomic pointer: a swap installs the
// new artifact in its entirety or not at all, and concurrent Predict calls
// keep using the artifact they loaded. Writes (register/activate) are
// serialized by a mutex; reads never block.
type Registry struct {
	dir    string
	minR2  float64
	logger *slog.Logger

	active atomic.Pointer[Artifact]

	mu   sync.Mutex
	meta manifest
}

// OpenRegistry loads the manifest in dir and, when it names an active
// version, loads that artifact. A directory without a manifest opens as an
// empty registry; forecasting then fails fast with ModelUnavailableError
// until a version is activated.
func OpenRegistry(dir string, minR2 float64, logger *slog.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	r := &Registry{dir: dir, minR2: minR2, logger: logger}

	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("open registry: %w", err)
	}

	if err := yaml.Unmarshal(data, &r.meta); err != nil {
		return nil, fmt.Errorf("parse registry manifest: %w", err)
	}

	if r.meta.Active != "" {
		a, err := LoadArtifact(filepath.Join(dir, r.meta.Active+".json"))
		if err != nil {
			return nil, fmt.Errorf("load active model %s: %w", r.meta.Active, err)
		}
		r.active.Store(a)
		logger.Info("active model loaded",
			"version", a.Version, "validation_r2", a.Validation.R2, "trained_at", a.TrainedAt)
	}
	return r, nil
}

// Active returns the serving artifact, or ModelUnavailableError when none is
// activated. The returned artifact is immutable.
func (r *Registry) Active() (*Artifact, error) {
	a := r.active.Load()
	if a == nil {
		return nil, &domain.ModelUnavailableError{}
	}
	return a, nil
}

// Register saves a freshly trained artifact into the registry without
// activating it.
func (r *Registry) Register(a *Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := a.Save(r.dir); err != nil {
		return err
	}

	for i, e := range r.meta.Versions {
		if e.Version == a.Version {
			r.meta.Versions[i] = entryFor(a)
			return r.writeManifest()
		}
	}
	r.meta.Versions = append(r.meta.Versions, entryFor(a))
	sort.Slice(r.meta.Versions, func(i, j int) bool {
		return r.meta.Versions[i].TrainedAt.Before(r.meta.Versions[j].TrainedAt)
	})
	return r.writeManifest()
}

// Activate loads a registered version and swaps it in as the serving
// artifact. Unless force is set, an artifact below the validation R² floor is
// refused so an underperforming model cannot displace a servable one; the
// previous version remains registered as a fallback either way.
func (r *Registry) Activate(version string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := LoadArtifact(filepath.Join(r.dir, version+".json"))
	if err != nil {
		return &domain.ModelUnavailableError{Version: version}
	}

	if !force && a.Validation.R2 < r.minR2 {
		return fmt.Errorf("model %s validation R² %.3f below floor %.3f",
			version, a.Validation.R2, r.minR2)
	}

	previous := r.active.Swap(a)
	r.meta.Active = version
	if err := r.writeManifest(); err != nil {
		return err
	}

	if previous != nil {
		r.logger.Info("model swapped", "from", previous.Version, "to", a.Version)
	} else {
		r.logger.Info("model activated", "version", a.Version)
	}
	return nil
}

// Versions lists registered versions, oldest first.
func (r *Registry) Versions() []VersionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]VersionInfo, len(r.meta.Versions))
	for i, e := range r.meta.Versions {
		out[i] = VersionInfo{
			Version:      e.Version,
			TrainedAt:    e.TrainedAt,
			ValidationR2: e.ValidationR2,
			Active:       e.Version == r.meta.Active,
		}
	}
	return out
}

func (r *Registry) writeManifest() error {
	data, err := yaml.Marshal(r.meta)
	if err != nil {
		return fmt.Errorf("marshal registry manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.dir, manifestName), data, 0o644); err != nil {
		return fmt.Errorf("write registry manifest: %w", err)
	}
	return nil
}

func entryFor(a *Artifact) versionEntry {
	return versionEntry{Version: a.Version, TrainedAt: a.TrainedAt, ValidationR2: a.Validation.R2}
}
