package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/artem-biriukov/agriguard/internal/climatology"
	"github.com/artem-biriukov/agriguard/internal/domain"
	"github.com/artem-biriukov/agriguard/internal/observability"
	"github.com/artem-biriukov/agriguard/internal/pipeline"
	"github.com/artem-biriukov/agriguard/internal/stress"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- mocks ---

type mockExtractor struct {
	mu      sync.Mutex
	batches [][]domain.RawEvent
	err     error
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		err := m.err
		m.err = nil
		return nil, err
	}
	if len(m.batches) == 0 {
		// block until context cancelled to simulate waiting for records
		m.mu.Unlock()
		<-ctx.Done()
		m.mu.Lock()
		return nil, ctx.Err()
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	return batch, nil
}

type mockTransformer struct {
	failKeys map[string]error
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	if err, ok := m.failKeys[string(raw.Key)]; ok {
		return domain.OutputEvent{}, err
	}
	return domain.OutputEvent{Key: raw.Key, Value: raw.Value}, nil
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.OutputEvent
	err    error
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		err := m.err
		m.err = nil
		return err
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) all() []domain.OutputEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutputEvent(nil), m.loaded...)
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func runPipeline(t *testing.T, p *pipeline.Pipeline, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw := makeRawEvent(t, "17113")

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	tfm := &mockTransformer{}
	ldr := &mockLoader{}

	p := pipeline.New(ext, tfm, ldr, slog.Default(), newTestMetrics(), 10)
	runPipeline(t, p, 500*time.Millisecond)

	loaded := ldr.all()
	require.Len(t, loaded, 1)
	assert.Equal(t, raw.Value, loaded[0].Value)
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no batches, will block
	p := pipeline.New(ext, &mockTransformer{}, &mockLoader{}, slog.Default(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ExcludesFailedRecordsOnly(t *testing.T) {
	good := makeRawEvent(t, "17113")
	bad := makeRawEvent(t, "19153")

	ext := &mockExtractor{batches: [][]domain.RawEvent{{good, bad}}}
	tfm := &mockTransformer{failKeys: map[string]error{
		"19153": &domain.MissingDataError{FIPS: "19153", Week: 7, Indicator: "ndvi"},
	}}
	ldr := &mockLoader{}

	p := pipeline.New(ext, tfm, ldr, slog.Default(), newTestMetrics(), 10)
	runPipeline(t, p, 500*time.Millisecond)

	loaded := ldr.all()
	require.Len(t, loaded, 1)
	assert.Equal(t, []byte("17113"), loaded[0].Key)
}

func TestPipeline_Run_CommitsExcludedRecords(t *testing.T) {
	var committed []string
	var mu sync.Mutex
	commit := func(key string) func(context.Context) error {
		return func(_ context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			committed = append(committed, key)
			return nil
		}
	}

	good := makeRawEvent(t, "17113")
	good.Commit = commit("17113")
	bad := makeRawEvent(t, "19153")
	bad.Commit = commit("19153")

	ext := &mockExtractor{batches: [][]domain.RawEvent{{good, bad}}}
	tfm := &mockTransformer{failKeys: map[string]error{
		"19153": &domain.OutOfRangeError{Field: "ndvi", Value: 1.4, Min: 0, Max: 1},
	}}

	p := pipeline.New(ext, tfm, &mockLoader{}, slog.Default(), newTestMetrics(), 10)
	runPipeline(t, p, 500*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"17113", "19153"}, committed)
}

func TestPipeline_Run_RetriesAfterExtractError(t *testing.T) {
	raw := makeRawEvent(t, "17113")

	ext := &mockExtractor{
		err:     errors.New("broker unavailable"),
		batches: [][]domain.RawEvent{{raw}},
	}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)
	runPipeline(t, p, 2*time.Second)

	assert.Len(t, ldr.all(), 1, "batch should load after backoff")
}

func TestPipeline_Run_RetriesAfterLoadError(t *testing.T) {
	raw := makeRawEvent(t, "17113")

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}, {raw}}}
	ldr := &mockLoader{err: errors.New("sink unavailable")}

	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)
	runPipeline(t, p, 2*time.Second)

	assert.Len(t, ldr.all(), 1, "second batch should load after backoff")
}

func TestScoreTransformer_Transform(t *testing.T) {
	tfm := pipeline.NewTransformer(newTestScorer(t))
	raw := makeRawEvent(t, "17113")
	raw.Key = []byte("17113:2025-06-20")

	out, err := tfm.Transform(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, []byte("17113"), out.Key)
	assert.Equal(t, "v1", out.Headers["algorithm_version"])
	assert.NotEmpty(t, out.Headers["band"])
	assert.Equal(t, "8", out.Headers["season_week"])

	var result domain.StressScoreResult
	require.NoError(t, json.Unmarshal(out.Value, &result))
	assert.Equal(t, "17113", result.FIPS)
	assert.Equal(t, "17113:2025-06-20", result.SourceKey)

	expected := domain.SubIndexScores{Water: 50, Heat: 20, Vegetation: 20, Atmospheric: 0}
	if diff := cmp.Diff(expected, result.SubIndices); diff != "" {
		t.Fatalf("sub-index mismatch (-want +got):\n%s", diff)
	}
}

func TestScoreTransformer_Transform_ParseError(t *testing.T) {
	tfm := pipeline.NewTransformer(newTestScorer(t))
	_, err := tfm.Transform(context.Background(), domain.RawEvent{Value: []byte("not json")})
	assert.Error(t, err)
}

func TestScoreTransformer_Transform_MissingIndicator(t *testing.T) {
	tfm := pipeline.NewTransformer(newTestScorer(t))

	raw := makeRawEvent(t, "17113")
	var rec domain.ObservationRecord
	require.NoError(t, json.Unmarshal(raw.Value, &rec))
	rec.NDVI = nil
	value, err := json.Marshal(rec)
	require.NoError(t, err)
	raw.Value = value

	_, err = tfm.Transform(context.Background(), raw)
	var missing *domain.MissingDataError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "ndvi", missing.Indicator)
}

// --- helpers ---

func newTestScorer(t *testing.T) *stress.Scorer {
	t.Helper()

	store := climatology.NewStore("test", map[string]climatology.CountyBaseline{
		"17113": {
			NDVIMean:     map[time.Month]float64{time.June: 0.60},
			VPDQuantiles: map[time.Month]climatology.Quantiles{time.June: {P50: 1.2, P75: 1.6, P90: 2.0}},
		},
	})

	scorer, err := stress.NewScorer(stress.WeightsV1, domain.PollinationWindow{StartWeek: 14, EndWeek: 16}, store)
	require.NoError(t, err)
	return scorer
}

func makeRawEvent(t *testing.T, fips string) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(domain.ObservationRecord{
		FIPS:         fips,
		Date:         time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC),
		NDVI:         &domain.Stat{Mean: 0.57, Std: 0.03, Min: 0.50, Max: 0.63},
		VPD:          &domain.Stat{Mean: 0.8, Std: 0.2, Min: 0.5, Max: 1.1},
		WaterDeficit: &domain.Stat{Mean: 3.0, Std: 1.0, Min: 1.0, Max: 5.0},
		HeatDays35:   2,
	})
	require.NoError(t, err)
	return domain.RawEvent{
		Key:   []byte(fips),
		Value: data,
		Topic: "cleaned-observations",
	}
}
