package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
)

// Model locations come from the environment so one machine's layout does not
// leak into the repo. Unset variables fall back to placeholder paths, which
// the precondition check turns into a clean per-variant skip.
const (
	EnvBaseModelPath = "VICUNA_PATH"
	EnvDrafterPath   = "DRAFTER_PATH"
	EnvMedusaPath    = "MEDUSA_PATH"
	EnvEaglePath     = "EAGLE_PATH"
	EnvPython        = "SPECBENCH_PYTHON"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DefaultDescriptors builds the stock variant list: the autoregressive
// baseline plus the speculative-decoding strategies, in the order they run.
func DefaultDescriptors(benchName string, temperature float64) []Descriptor {
	python := envOr(EnvPython, "python3")
	basePath := envOr(EnvBaseModelPath, "/path/to/vicuna-7b-v1.3")
	drafterPath := envOr(EnvDrafterPath, "/path/to/vicuna-68m")
	medusaPath := envOr(EnvMedusaPath, "/path/to/medusa-vicuna-7b-v1.3")
	eaglePath := envOr(EnvEaglePath, "/path/to/EAGLE-Vicuna-7B-v1.3")

	base := filepath.Base(basePath)
	temp := formatTemperature(temperature)
	common := []string{"--bench-name", benchName, "--temperature", temp, "--dtype", "float16"}

	argv := func(module string, args ...string) []string {
		out := []string{python, "-m", module}
		out = append(out, args...)
		return append(out, common...)
	}

	return []Descriptor{
		{
			Name:       "vanilla",
			ModelID:    base + "-vanilla-float16",
			ModelPaths: []string{basePath},
			Baseline:   true,
			Command: argv("evaluation.inference_baseline",
				"--model-path", basePath,
				"--model-id", base+"-vanilla-float16"),
		},
		{
			Name:       "sps",
			ModelID:    base + "-sps-68m-float16",
			ModelPaths: []string{basePath, drafterPath},
			Command: argv("evaluation.inference_sps",
				"--model-path", basePath,
				"--drafter-path", drafterPath,
				"--model-id", base+"-sps-68m-float16"),
		},
		{
			Name:       "medusa",
			ModelID:    "medusa-" + base + "-float16",
			ModelPaths: []string{basePath, medusaPath},
			Command: argv("evaluation.inference_medusa",
				"--model-path", medusaPath,
				"--base-model", basePath,
				"--model-id", "medusa-"+base+"-float16"),
		},
		{
			Name:       "eagle",
			ModelID:    "eagle-" + base + "-float16",
			ModelPaths: []string{basePath, eaglePath},
			Command: argv("evaluation.inference_eagle",
				"--ea-model-path", eaglePath,
				"--base-model-path", basePath,
				"--model-id", "eagle-"+base+"-float16"),
		},
		{
			Name:       "pld",
			ModelID:    base + "-pld-float16",
			ModelPaths: []string{basePath},
			Command: argv("evaluation.inference_pld",
				"--model-path", basePath,
				"--model-id", base+"-pld-float16"),
		},
		{
			Name:       "lookahead",
			ModelID:    base + "-lade-level-5-win-7-guess-7-float16",
			ModelPaths: []string{basePath},
			Command: argv("evaluation.inference_lookahead",
				"--model-path", basePath,
				"--model-id", base+"-lade-level-5-win-7-guess-7-float16"),
		},
	}
}

// FilterDescriptors keeps only the named variants, preserving order. An
// unknown name is an error so typos do not silently run nothing.
func FilterDescriptors(descriptors []Descriptor, names []string) ([]Descriptor, error) {
	if len(names) == 0 {
		return descriptors, nil
	}
	byName := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		byName[d.Name] = d
	}
	out := make([]Descriptor, 0, len(names))
	for _, n := range names {
		d, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown variant %q", n)
		}
		out = append(out, d)
	}
	return out, nil
}
