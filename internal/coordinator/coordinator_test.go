package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls    [][]string
	exitCode func(argv []string) int
	onRun    func(argv []string)
}

func (r *fakeRunner) Run(_ context.Context, argv []string) (int, error) {
	r.calls = append(r.calls, argv)
	if r.onRun != nil {
		r.onRun(argv)
	}
	if r.exitCode != nil {
		return r.exitCode(argv), nil
	}
	return 0, nil
}

type fakeUploader struct {
	files  []string
	models []string
}

func (u *fakeUploader) UploadSingle(_ context.Context, resultFile, modelName string) error {
	u.files = append(u.files, resultFile)
	u.models = append(u.models, modelName)
	return nil
}

type analyzerCall struct {
	model, modelFile, baselineFile, tokenizer string
}

type fakeAnalyzer struct {
	calls []analyzerCall
}

func (a *fakeAnalyzer) Run(_ context.Context, modelName, modelFile, baselineFile, tokenizerPath string) error {
	a.calls = append(a.calls, analyzerCall{modelName, modelFile, baselineFile, tokenizerPath})
	return nil
}

func modelDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "vicuna-7b-v1.3")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func newCoordinator(t *testing.T, runner CommandRunner, up Uploader, an Analyzer) *Coordinator {
	t.Helper()
	return &Coordinator{
		ResultsDir:    filepath.Join(t.TempDir(), "answers"),
		BenchName:     "spec_bench",
		Temperature:   0,
		TokenizerPath: "models/vicuna-7b-v1.3",
		Runner:        runner,
		Uploader:      up,
		Analyzer:      an,
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
}

func TestResultPathDeterministic(t *testing.T) {
	d := Descriptor{ModelID: "eagle-vicuna-7b-v1.3-float16"}
	assert.Equal(t,
		filepath.Join("out", "eagle-vicuna-7b-v1.3-float16-spec_bench-temp-0.jsonl"),
		d.ResultPath("out", "spec_bench", 0))
	assert.Equal(t,
		filepath.Join("out", "eagle-vicuna-7b-v1.3-float16-spec_bench-temp-0.7.jsonl"),
		d.ResultPath("out", "spec_bench", 0.7))
}

func TestIsPlaceholderPath(t *testing.T) {
	assert.True(t, IsPlaceholderPath(""))
	assert.True(t, IsPlaceholderPath("/path/to/vicuna-7b-v1.3"))
	assert.False(t, IsPlaceholderPath("/data/models/vicuna-7b-v1.3"))
}

func TestRunBatchExistingResultSkipsInference(t *testing.T) {
	dir := modelDir(t)
	runner := &fakeRunner{}
	up := &fakeUploader{}
	an := &fakeAnalyzer{}
	c := newCoordinator(t, runner, up, an)

	baseline := Descriptor{Name: "vanilla", ModelID: "base-vanilla", ModelPaths: []string{dir}, Baseline: true}
	variant := Descriptor{Name: "eagle", ModelID: "eagle-base", ModelPaths: []string{dir}, Command: []string{"true"}}

	touch(t, baseline.ResultPath(c.ResultsDir, c.BenchName, c.Temperature))
	touch(t, variant.ResultPath(c.ResultsDir, c.BenchName, c.Temperature))

	results, err := c.RunBatch(context.Background(), []Descriptor{baseline, variant})
	require.NoError(t, err)

	assert.Empty(t, runner.calls, "inference must not re-run for existing answers")
	require.Len(t, results, 2)
	assert.Equal(t, OutcomeReused, results[0].Outcome)
	assert.Equal(t, OutcomeReused, results[1].Outcome)

	// upload still happens for both, analysis only for the non-baseline
	assert.Equal(t, []string{"base-vanilla", "eagle-base"}, up.models)
	require.Len(t, an.calls, 1)
	assert.Equal(t, "eagle-base", an.calls[0].model)
	assert.True(t, results[1].Analyzed)
	assert.False(t, results[0].Analyzed)
}

func TestRunBatchPlaceholderSkipsEverything(t *testing.T) {
	runner := &fakeRunner{}
	up := &fakeUploader{}
	an := &fakeAnalyzer{}
	c := newCoordinator(t, runner, up, an)

	d := Descriptor{
		Name:       "medusa",
		ModelID:    "medusa-base",
		ModelPaths: []string{"/path/to/medusa-vicuna-7b-v1.3"},
		Command:    []string{"false"},
	}

	results, err := c.RunBatch(context.Background(), []Descriptor{d})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeSkipped, results[0].Outcome)
	assert.Empty(t, runner.calls)
	assert.Empty(t, up.files)
	assert.Empty(t, an.calls)
}

func TestRunBatchMissingModelPathSkips(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(t, runner, nil, nil)

	d := Descriptor{
		Name:       "sps",
		ModelID:    "base-sps",
		ModelPaths: []string{filepath.Join(t.TempDir(), "does-not-exist")},
		Command:    []string{"true"},
	}

	results, err := c.RunBatch(context.Background(), []Descriptor{d})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, results[0].Outcome)
	assert.Empty(t, runner.calls)
}

func TestRunBatchNoConfigStillRunsInference(t *testing.T) {
	dir := modelDir(t)
	runner := &fakeRunner{}
	c := newCoordinator(t, runner, nil, nil) // nil collaborators: config absent

	d := Descriptor{Name: "vanilla", ModelID: "base-vanilla", ModelPaths: []string{dir}, Baseline: true,
		Command: []string{"python3", "-m", "evaluation.inference_baseline"}}
	runner.onRun = func(argv []string) {
		touch(t, d.ResultPath(c.ResultsDir, c.BenchName, c.Temperature))
	}

	results, err := c.RunBatch(context.Background(), []Descriptor{d})
	require.NoError(t, err)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, OutcomeCompleted, results[0].Outcome)
	assert.False(t, results[0].Uploaded)
	assert.False(t, results[0].Analyzed)
}

func TestRunBatchInferenceFailureContinues(t *testing.T) {
	dir := modelDir(t)
	up := &fakeUploader{}
	an := &fakeAnalyzer{}
	runner := &fakeRunner{
		exitCode: func(argv []string) int {
			if argv[0] == "fail" {
				return 1
			}
			return 0
		},
	}
	c := newCoordinator(t, runner, up, an)

	failing := Descriptor{Name: "medusa", ModelID: "medusa-base", ModelPaths: []string{dir}, Command: []string{"fail"}}
	next := Descriptor{Name: "pld", ModelID: "base-pld", ModelPaths: []string{dir}, Command: []string{"ok"}}

	results, err := c.RunBatch(context.Background(), []Descriptor{failing, next})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, OutcomeFailed, results[0].Outcome)
	assert.Equal(t, 1, results[0].ExitCode)
	assert.False(t, results[0].Uploaded)
	assert.False(t, results[0].Analyzed)

	// the failing variant produced no upload; the next one still ran
	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{"base-pld"}, up.models)
}

func TestRunBatchAnalyzerGetsExactPaths(t *testing.T) {
	dir := modelDir(t)
	an := &fakeAnalyzer{}
	c := newCoordinator(t, &fakeRunner{}, &fakeUploader{}, an)

	baseline := Descriptor{Name: "vanilla", ModelID: "base-vanilla", ModelPaths: []string{dir}, Baseline: true}
	variant := Descriptor{Name: "eagle", ModelID: "eagle-base", ModelPaths: []string{dir}}

	baselinePath := baseline.ResultPath(c.ResultsDir, c.BenchName, c.Temperature)
	variantPath := variant.ResultPath(c.ResultsDir, c.BenchName, c.Temperature)
	touch(t, baselinePath)
	touch(t, variantPath)

	_, err := c.RunBatch(context.Background(), []Descriptor{baseline, variant})
	require.NoError(t, err)

	require.Len(t, an.calls, 1)
	assert.Equal(t, variantPath, an.calls[0].modelFile)
	assert.Equal(t, baselinePath, an.calls[0].baselineFile)
	assert.Equal(t, "models/vicuna-7b-v1.3", an.calls[0].tokenizer)
}

func TestRunBatchMissingBaselineSkipsAnalysis(t *testing.T) {
	dir := modelDir(t)
	an := &fakeAnalyzer{}
	c := newCoordinator(t, &fakeRunner{}, &fakeUploader{}, an)

	baseline := Descriptor{Name: "vanilla", ModelID: "base-vanilla", ModelPaths: []string{"/path/to/missing"}, Baseline: true}
	variant := Descriptor{Name: "eagle", ModelID: "eagle-base", ModelPaths: []string{dir}}
	touch(t, variant.ResultPath(c.ResultsDir, c.BenchName, c.Temperature))

	results, err := c.RunBatch(context.Background(), []Descriptor{baseline, variant})
	require.NoError(t, err)
	assert.Empty(t, an.calls)
	assert.False(t, results[1].Analyzed)
}

func TestDefaultDescriptors(t *testing.T) {
	t.Setenv(EnvBaseModelPath, "/data/models/vicuna-7b-v1.3")
	t.Setenv(EnvEaglePath, "/data/models/EAGLE-Vicuna-7B-v1.3")

	descriptors := DefaultDescriptors("spec_bench", 0)
	require.Len(t, descriptors, 6)

	assert.Equal(t, "vanilla", descriptors[0].Name)
	assert.True(t, descriptors[0].Baseline)
	assert.Equal(t, "vicuna-7b-v1.3-vanilla-float16", descriptors[0].ModelID)
	assert.Contains(t, descriptors[0].Command, "/data/models/vicuna-7b-v1.3")

	var eagle Descriptor
	for _, d := range descriptors {
		require.NotEmpty(t, d.Command)
		assert.Contains(t, d.Command, "--bench-name")
		if d.Name == "eagle" {
			eagle = d
		}
	}
	assert.Equal(t, []string{"/data/models/vicuna-7b-v1.3", "/data/models/EAGLE-Vicuna-7B-v1.3"}, eagle.ModelPaths)

	// unset variables stay placeholders so the precondition check skips them
	var medusa Descriptor
	for _, d := range descriptors {
		if d.Name == "medusa" {
			medusa = d
		}
	}
	assert.True(t, IsPlaceholderPath(medusa.ModelPaths[1]))
}

func TestFilterDescriptors(t *testing.T) {
	descriptors := DefaultDescriptors("spec_bench", 0)

	t.Run("subset preserves requested order", func(t *testing.T) {
		out, err := FilterDescriptors(descriptors, []string{"eagle", "vanilla"})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "eagle", out[0].Name)
		assert.Equal(t, "vanilla", out[1].Name)
	})

	t.Run("empty filter keeps all", func(t *testing.T) {
		out, err := FilterDescriptors(descriptors, nil)
		require.NoError(t, err)
		assert.Len(t, out, len(descriptors))
	})

	t.Run("unknown variant", func(t *testing.T) {
		_, err := FilterDescriptors(descriptors, []string{"tree-attention"})
		assert.Error(t, err)
	})
}
