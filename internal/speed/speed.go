// Package speed compares a speculative-decoding run against the autoregressive
// baseline and records the per-task comparison in the experiment tracker.
package speed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"specbench/internal/mlflow"
	"specbench/internal/results"
)

// Tasks are the benchmark categories compared one by one; "overall" spans
// every record regardless of category.
var Tasks = []string{"mt_bench", "translation", "summarization", "qa", "math_reasoning", "rag", "overall"}

const OverallTask = "overall"

var ErrNoRecords = errors.New("no records for task")

type TaskReport struct {
	Task                 string
	TokensPerSec         float64
	BaselineTokensPerSec float64
	SpeedupRatio         float64
	MeanAcceptLength     float64
	MaxAcceptLength      float64
	AcceptanceRate       float64
	HasAcceptStats       bool
}

// Compare computes throughput for candidate and baseline restricted to one
// task, plus accept-length statistics for the candidate.
func Compare(candidate, baseline []results.Record, task string) (TaskReport, error) {
	category := task
	if task == OverallTask {
		category = ""
	}

	cand := results.FilterByCategory(candidate, category)
	base := results.FilterByCategory(baseline, category)

	tps, ok := results.Throughput(cand)
	if !ok {
		return TaskReport{}, fmt.Errorf("%w: %s (candidate)", ErrNoRecords, task)
	}
	baseTps, ok := results.Throughput(base)
	if !ok {
		return TaskReport{}, fmt.Errorf("%w: %s (baseline)", ErrNoRecords, task)
	}

	report := TaskReport{
		Task:                 task,
		TokensPerSec:         tps,
		BaselineTokensPerSec: baseTps,
		SpeedupRatio:         tps / baseTps,
	}

	if accepts := results.AcceptLengths(cand); len(accepts) > 0 {
		report.HasAcceptStats = true
		var sum, max float64
		accepted := 0
		for _, al := range accepts {
			sum += al
			if al > max {
				max = al
			}
			if al > 0 {
				accepted++
			}
		}
		report.MeanAcceptLength = sum / float64(len(accepts))
		report.MaxAcceptLength = max
		report.AcceptanceRate = float64(accepted) / float64(len(accepts))
	}

	return report, nil
}

// Metrics flattens a report into tracker metric names.
func (r TaskReport) Metrics() map[string]float64 {
	m := map[string]float64{
		r.Task + "_tokens_per_second":          r.TokensPerSec,
		r.Task + "_tokens_per_second_baseline": r.BaselineTokensPerSec,
		r.Task + "_speedup_ratio":              r.SpeedupRatio,
	}
	if r.HasAcceptStats {
		m[r.Task+"_mean_accept_length"] = r.MeanAcceptLength
		m[r.Task+"_max_accept_length"] = r.MaxAcceptLength
		m[r.Task+"_acceptance_rate"] = r.AcceptanceRate
	}
	return m
}

// Tracker is the experiment-tracker surface the analyzer records to.
type Tracker interface {
	GetOrCreateExperiment(ctx context.Context, name string) (string, error)
	CreateRun(ctx context.Context, experimentID, runName string, tags map[string]string) (string, error)
	LogBatch(ctx context.Context, runID string, params []mlflow.Param, metrics []mlflow.Metric) error
	EndRun(ctx context.Context, runID string) error
}

type Analyzer struct {
	tracker    Tracker
	experiment string
}

func NewAnalyzer(tracker Tracker, experiment string) *Analyzer {
	return &Analyzer{tracker: tracker, experiment: experiment}
}

// Run reads both answer files and logs one tracker run named
// speed_analysis_<model> with per-task throughput and speedup metrics. Tasks
// without records are skipped; the remaining tasks still report.
func (a *Analyzer) Run(ctx context.Context, modelName, modelFile, baselineFile, tokenizerPath string) error {
	candidate, err := results.ReadFile(modelFile)
	if err != nil {
		return fmt.Errorf("read model results: %w", err)
	}
	baseline, err := results.ReadFile(baselineFile)
	if err != nil {
		return fmt.Errorf("read baseline results: %w", err)
	}

	expID, err := a.tracker.GetOrCreateExperiment(ctx, a.experiment)
	if err != nil {
		return fmt.Errorf("resolve experiment: %w", err)
	}

	runID, err := a.tracker.CreateRun(ctx, expID, "speed_analysis_"+modelName, nil)
	if err != nil {
		return fmt.Errorf("create tracker run: %w", err)
	}

	params := []mlflow.Param{
		{Key: "model_name", Value: modelName},
		{Key: "model_file", Value: filepath.Base(modelFile)},
		{Key: "baseline_file", Value: filepath.Base(baselineFile)},
		{Key: "tokenizer_path", Value: tokenizerPath},
	}
	if err := a.tracker.LogBatch(ctx, runID, params, nil); err != nil {
		slog.Warn("log speed params failed", "model", modelName, "error", err)
	}

	for _, task := range Tasks {
		report, err := Compare(candidate, baseline, task)
		if err != nil {
			slog.Warn("speed task skipped", "task", task, "error", err)
			continue
		}
		if err := a.tracker.LogBatch(ctx, runID, nil, mlflow.MetricsFromMap(report.Metrics())); err != nil {
			slog.Warn("log speed metrics failed", "task", task, "error", err)
			continue
		}
		slog.Info("speed task analyzed",
			"task", task,
			"speedup", fmt.Sprintf("%.2fx", report.SpeedupRatio),
			"tokens_per_sec", fmt.Sprintf("%.1f", report.TokensPerSec))
	}

	if err := a.tracker.EndRun(ctx, runID); err != nil {
		slog.Warn("end tracker run failed", "run_id", runID, "error", err)
	}
	slog.Info("speed analysis finished", "model", modelName)
	return nil
}
