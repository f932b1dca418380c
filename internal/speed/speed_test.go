package speed

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specbench/internal/mlflow"
	"specbench/internal/results"
)

func record(category string, wallTime float64, newTokens int, accepts ...float64) results.Record {
	return results.Record{
		Category: category,
		Choices: []results.Choice{{
			WallTime:      []float64{wallTime},
			NewTokens:     []int{newTokens},
			AcceptLengths: accepts,
		}},
	}
}

func TestCompare(t *testing.T) {
	candidate := []results.Record{
		record("qa", 1.0, 60, 3, 0, 2),
		record("rag", 2.0, 40),
	}
	baseline := []results.Record{
		record("qa", 2.0, 60),
		record("rag", 4.0, 40),
	}

	t.Run("single task", func(t *testing.T) {
		r, err := Compare(candidate, baseline, "qa")
		require.NoError(t, err)
		assert.Equal(t, 60.0, r.TokensPerSec)
		assert.Equal(t, 30.0, r.BaselineTokensPerSec)
		assert.Equal(t, 2.0, r.SpeedupRatio)
		require.True(t, r.HasAcceptStats)
		assert.InDelta(t, 5.0/3.0, r.MeanAcceptLength, 1e-9)
		assert.Equal(t, 3.0, r.MaxAcceptLength)
		assert.InDelta(t, 2.0/3.0, r.AcceptanceRate, 1e-9)
	})

	t.Run("overall spans categories", func(t *testing.T) {
		r, err := Compare(candidate, baseline, OverallTask)
		require.NoError(t, err)
		// candidate: 100 tokens / 3s, baseline: 100 tokens / 6s
		assert.InDelta(t, 100.0/3.0, r.TokensPerSec, 1e-9)
		assert.InDelta(t, 2.0, r.SpeedupRatio, 1e-9)
	})

	t.Run("no records for task", func(t *testing.T) {
		_, err := Compare(candidate, baseline, "math_reasoning")
		assert.ErrorIs(t, err, ErrNoRecords)
	})

	t.Run("no accept stats", func(t *testing.T) {
		r, err := Compare(candidate, baseline, "rag")
		require.NoError(t, err)
		assert.False(t, r.HasAcceptStats)
		m := r.Metrics()
		assert.Contains(t, m, "rag_speedup_ratio")
		assert.NotContains(t, m, "rag_mean_accept_length")
	})
}

type fakeTracker struct {
	runName string
	params  []mlflow.Param
	metrics []mlflow.Metric
	ended   bool
}

func (f *fakeTracker) GetOrCreateExperiment(_ context.Context, name string) (string, error) {
	return "exp-1", nil
}

func (f *fakeTracker) CreateRun(_ context.Context, _, runName string, _ map[string]string) (string, error) {
	f.runName = runName
	return "run-1", nil
}

func (f *fakeTracker) LogBatch(_ context.Context, _ string, params []mlflow.Param, metrics []mlflow.Metric) error {
	f.params = append(f.params, params...)
	f.metrics = append(f.metrics, metrics...)
	return nil
}

func (f *fakeTracker) EndRun(_ context.Context, _ string) error {
	f.ended = true
	return nil
}

func writeAnswers(t *testing.T, name string, records []results.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, r := range records {
		require.NoError(t, enc.Encode(r))
	}
	return path
}

func TestAnalyzerRun(t *testing.T) {
	modelFile := writeAnswers(t, "eagle.jsonl", []results.Record{record("qa", 1.0, 80, 4)})
	baselineFile := writeAnswers(t, "vanilla.jsonl", []results.Record{record("qa", 2.0, 80)})

	tracker := &fakeTracker{}
	a := NewAnalyzer(tracker, "spec-bench-evaluation")

	err := a.Run(context.Background(), "eagle", modelFile, baselineFile, "models/vicuna-7b-v1.3")
	require.NoError(t, err)

	assert.Equal(t, "speed_analysis_eagle", tracker.runName)
	assert.True(t, tracker.ended)

	paramKeys := make(map[string]string)
	for _, p := range tracker.params {
		paramKeys[p.Key] = p.Value
	}
	assert.Equal(t, "eagle", paramKeys["model_name"])
	assert.Equal(t, "models/vicuna-7b-v1.3", paramKeys["tokenizer_path"])

	metricKeys := make(map[string]float64)
	for _, m := range tracker.metrics {
		metricKeys[m.Key] = m.Value
	}
	// qa and overall have records, the other tasks are skipped
	assert.Contains(t, metricKeys, "qa_speedup_ratio")
	assert.Contains(t, metricKeys, "overall_speedup_ratio")
	assert.NotContains(t, metricKeys, "rag_speedup_ratio")
	assert.Equal(t, 2.0, metricKeys["qa_speedup_ratio"])
}

func TestAnalyzerRunMissingFile(t *testing.T) {
	baselineFile := writeAnswers(t, "vanilla.jsonl", []results.Record{record("qa", 2.0, 80)})
	a := NewAnalyzer(&fakeTracker{}, "exp")
	err := a.Run(context.Background(), "eagle", filepath.Join(t.TempDir(), "missing.jsonl"), baselineFile, "tok")
	assert.Error(t, err)
}
