package climatology

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaselines = `
version: "2025.1"
counties:
  "19153":
    ndvi_mean:
      6: 0.62
      7: 0.71
      8: 0.68
    vpd_quantiles:
      7: {p50: 1.1, p75: 1.6, p90: 2.2}
      8: {p50: 1.2, p75: 1.7, p90: 2.4}
    weekly_water_deficit:
      14: 2.8
      15: 3.1
    baseline_yield: 182.5
    avg_planting_doy: 115
    feature_defaults:
      water_deficit_cumsum: 150
      precipitation_cumsum: 390
      ndvi_mean: 0.64
`

func writeBaselines(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "climatology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	store, err := LoadFile(writeBaselines(t, testBaselines))
	require.NoError(t, err)

	assert.Equal(t, "2025.1", store.Version())
	assert.Equal(t, 1, store.Counties())

	b, ok := store.County("19153")
	require.True(t, ok)
	assert.Equal(t, 0.71, b.NDVIMean[time.July])
	assert.Equal(t, 1.6, b.VPDQuantiles[time.July].P75)
	assert.Equal(t, 3.1, b.WeeklyWaterDeficit[15])
	assert.Equal(t, 182.5, b.BaselineYield)
	assert.Equal(t, 150.0, b.FeatureDefaults["water_deficit_cumsum"])
}

func TestLoadFile_UnknownCounty(t *testing.T) {
	store, err := LoadFile(writeBaselines(t, testBaselines))
	require.NoError(t, err)

	_, ok := store.County("99999")
	assert.False(t, ok)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFile_Empty(t *testing.T) {
	_, err := LoadFile(writeBaselines(t, "version: x\ncounties: {}\n"))
	assert.Error(t, err)
}

func TestRefresh_KeepsOldTableOnFailure(t *testing.T) {
	path := writeBaselines(t, testBaselines)
	store, err := LoadFile(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("counties: {}\n"), 0o600))
	require.Error(t, store.Refresh())

	// Previously loaded table still serves.
	_, ok := store.County("19153")
	assert.True(t, ok)
	assert.Equal(t, "2025.1", store.Version())
}
