package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/artem-biriukov/agriguard/internal/domain"
	"github.com/artem-biriukov/agriguard/internal/stress"
)

// ScoreTransformer implements Transformer by parsing cleaned observation
// records and running them through the stress scorer.
type ScoreTransformer struct {
	scorer *stress.Scorer
}

// NewTransformer creates a ScoreTransformer around a scorer.
func NewTransformer(scorer *stress.Scorer) *ScoreTransformer {
	return &ScoreTransformer{scorer: scorer}
}

func (t *ScoreTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	rec, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	result, err := t.scorer.Score(rec)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	result.SourceKey = string(raw.Key)

	value, err := json.Marshal(result)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("marshal stress score: %w", err)
	}

	return domain.OutputEvent{
		Key:   []byte(result.FIPS),
		Value: value,
		Headers: map[string]string{
			"band":              result.Band,
			"season_week":       strconv.Itoa(result.SeasonWeek),
			"algorithm_version": result.AlgorithmVersion,
		},
	}, nil
}
