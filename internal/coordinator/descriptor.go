package coordinator

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Descriptor is one benchmark variant: a model identity, the paths it needs
// on disk, and the inference invocation that produces its answer file. A
// descriptor is immutable once the batch starts.
type Descriptor struct {
	// Name is the variant name ("vanilla", "eagle", ...).
	Name string

	// ModelID names the answer file and the upload branch.
	ModelID string

	// ModelPaths are the on-disk dependencies (base model, drafter, heads).
	// Every path must exist and be a real location, not a placeholder.
	ModelPaths []string

	// Command is the inference runner invocation, argv style.
	Command []string

	// Baseline marks the autoregressive reference run; it is never
	// speed-compared against itself.
	Baseline bool
}

// ResultPath is deterministic from the model id and the fixed benchmark
// parameters, which is what makes re-running a batch idempotent.
func (d Descriptor) ResultPath(resultsDir, benchName string, temperature float64) string {
	name := fmt.Sprintf("%s-%s-temp-%s.jsonl", d.ModelID, benchName, formatTemperature(temperature))
	return filepath.Join(resultsDir, name)
}

func formatTemperature(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

// placeholderMarker flags model paths that were never filled in. The stock
// environment defaults use it so an unconfigured variant skips cleanly.
const placeholderMarker = "/path/to/"

// IsPlaceholderPath reports whether a path is unset or still the stock
// fill-me-in value.
func IsPlaceholderPath(path string) bool {
	return path == "" || strings.Contains(path, placeholderMarker)
}
