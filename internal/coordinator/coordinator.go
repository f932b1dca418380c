// Package coordinator sequences the benchmark batch: for every variant it
// either reuses an existing answer file or runs inference, then uploads the
// artifact and speed-compares it against the baseline. A single variant's
// failure never stops the batch.
package coordinator

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Uploader pushes one answer file to the object store. Nil on the
// Coordinator means upload is configured out and gets skipped.
type Uploader interface {
	UploadSingle(ctx context.Context, resultFile, modelName string) error
}

// Analyzer records the speed comparison of a variant against the baseline.
type Analyzer interface {
	Run(ctx context.Context, modelName, modelFile, baselineFile, tokenizerPath string) error
}

type Outcome string

const (
	// OutcomeSkipped: a model path was missing or a placeholder.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeReused: the answer file already existed, inference not run.
	OutcomeReused Outcome = "reused"
	// OutcomeCompleted: inference ran and exited zero.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed: inference exited non-zero or could not start.
	OutcomeFailed Outcome = "failed"
)

type DescriptorResult struct {
	Name     string
	Outcome  Outcome
	ExitCode int
	Duration time.Duration
	Uploaded bool
	Analyzed bool
}

type Coordinator struct {
	ResultsDir    string
	BenchName     string
	Temperature   float64
	TokenizerPath string

	Runner   CommandRunner
	Uploader Uploader
	Analyzer Analyzer
}

// RunBatch walks the descriptors in order, fully finishing one variant's
// pipeline before starting the next. Every step is attempted exactly once.
func (c *Coordinator) RunBatch(ctx context.Context, descriptors []Descriptor) ([]DescriptorResult, error) {
	if err := os.MkdirAll(c.ResultsDir, 0o755); err != nil {
		return nil, err
	}

	baselinePath := c.baselineResultPath(descriptors)

	results := make([]DescriptorResult, 0, len(descriptors))
	for _, d := range descriptors {
		results = append(results, c.runOne(ctx, d, baselinePath))
	}

	slog.Info("batch finished", "variants", len(descriptors))
	return results, nil
}

func (c *Coordinator) runOne(ctx context.Context, d Descriptor, baselinePath string) DescriptorResult {
	res := DescriptorResult{Name: d.Name}

	if bad, ok := missingModelPath(d); ok {
		slog.Warn("variant skipped, model path not configured", "variant", d.Name, "path", bad)
		res.Outcome = OutcomeSkipped
		return res
	}

	resultPath := d.ResultPath(c.ResultsDir, c.BenchName, c.Temperature)
	if _, err := os.Stat(resultPath); err == nil {
		slog.Info("answer file exists, skipping inference", "variant", d.Name, "file", resultPath)
		res.Outcome = OutcomeReused
	} else {
		slog.Info("running inference", "variant", d.Name, "model_id", d.ModelID)
		start := time.Now()
		exitCode, err := c.Runner.Run(ctx, d.Command)
		res.Duration = time.Since(start)
		res.ExitCode = exitCode

		if err != nil {
			slog.Error("inference could not start", "variant", d.Name, "error", err)
			res.Outcome = OutcomeFailed
			return res
		}
		if exitCode != 0 {
			slog.Error("inference failed", "variant", d.Name, "exit_code", exitCode, "duration", res.Duration)
			res.Outcome = OutcomeFailed
			return res
		}
		slog.Info("inference finished", "variant", d.Name, "duration", res.Duration)
		res.Outcome = OutcomeCompleted
	}

	res.Uploaded = c.upload(ctx, d, resultPath)
	res.Analyzed = c.analyze(ctx, d, resultPath, baselinePath)
	return res
}

func (c *Coordinator) upload(ctx context.Context, d Descriptor, resultPath string) bool {
	if c.Uploader == nil {
		slog.Warn("upload skipped, no store configured", "variant", d.Name)
		return false
	}
	if err := c.Uploader.UploadSingle(ctx, resultPath, d.ModelID); err != nil {
		slog.Error("upload failed", "variant", d.Name, "error", err)
		return false
	}
	return true
}

func (c *Coordinator) analyze(ctx context.Context, d Descriptor, resultPath, baselinePath string) bool {
	if d.Baseline {
		return false
	}
	if c.Analyzer == nil {
		slog.Warn("speed analysis skipped, no tracker configured", "variant", d.Name)
		return false
	}
	if baselinePath == "" {
		slog.Warn("speed analysis skipped, batch has no baseline variant", "variant", d.Name)
		return false
	}
	if _, err := os.Stat(baselinePath); err != nil {
		slog.Warn("speed analysis skipped, baseline answers missing", "variant", d.Name, "baseline", baselinePath)
		return false
	}
	if err := c.Analyzer.Run(ctx, d.ModelID, resultPath, baselinePath, c.TokenizerPath); err != nil {
		slog.Error("speed analysis failed", "variant", d.Name, "error", err)
		return false
	}
	return true
}

func (c *Coordinator) baselineResultPath(descriptors []Descriptor) string {
	for _, d := range descriptors {
		if d.Baseline {
			return d.ResultPath(c.ResultsDir, c.BenchName, c.Temperature)
		}
	}
	return ""
}

func missingModelPath(d Descriptor) (string, bool) {
	for _, p := range d.ModelPaths {
		if IsPlaceholderPath(p) {
			return p, true
		}
		if _, err := os.Stat(p); err != nil {
			return p, true
		}
	}
	return "", false
}
