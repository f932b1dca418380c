// Package upload pushes benchmark answer files to the object store, one
// branch per experiment, and mirrors the derived metrics to the experiment
// tracker.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"specbench/internal/mlflow"
	"specbench/internal/results"
)

// Store is the object-store surface the uploader writes through.
type Store interface {
	CreateBranch(ctx context.Context, repo, name, sourceBranch string) error
	UploadObject(ctx context.Context, repo, branch, remotePath string, content []byte) error
	Commit(ctx context.Context, repo, branch, message string) (string, error)
}

// Tracker mirrors upload metrics to the experiment tracker. Optional.
type Tracker interface {
	GetOrCreateExperiment(ctx context.Context, name string) (string, error)
	CreateRun(ctx context.Context, experimentID, runName string, tags map[string]string) (string, error)
	LogBatch(ctx context.Context, runID string, params []mlflow.Param, metrics []mlflow.Metric) error
	EndRun(ctx context.Context, runID string) error
}

var ErrNoResults = errors.New("no result files found")

type Uploader struct {
	store         Store
	repo          string
	branchPrefix  string
	sourceBranch  string
	storeEndpoint string
	trackingURI   string

	tracker    Tracker
	experiment string
	tags       map[string]string

	now func() time.Time
}

type Option func(*Uploader)

func New(store Store, repo, branchPrefix string, opts ...Option) *Uploader {
	u := &Uploader{
		store:        store,
		repo:         repo,
		branchPrefix: branchPrefix,
		sourceBranch: "main",
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// WithTracker enables metric mirroring for directory uploads.
func WithTracker(tracker Tracker, experiment string, tags map[string]string) Option {
	return func(u *Uploader) {
		u.tracker = tracker
		u.experiment = experiment
		u.tags = tags
	}
}

func WithClock(now func() time.Time) Option {
	return func(u *Uploader) {
		u.now = now
	}
}

// WithEndpoints records the store and tracker locations in the uploaded
// experiment metadata.
func WithEndpoints(storeEndpoint, trackingURI string) Option {
	return func(u *Uploader) {
		u.storeEndpoint = storeEndpoint
		u.trackingURI = trackingURI
	}
}

var unsafeBranchChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeBranchName maps a model identifier to a legal branch name.
func SanitizeBranchName(name string) string {
	safe := unsafeBranchChars.ReplaceAllString(name, "_")
	if strings.HasPrefix(safe, "-") {
		safe = "model_" + safe[1:]
	}
	return safe
}

// UploadSingle pushes one answer file onto a per-model branch. Used by the
// run coordinator after each successful descriptor.
func (u *Uploader) UploadSingle(ctx context.Context, resultFile, modelName string) error {
	if _, err := os.Stat(resultFile); err != nil {
		return fmt.Errorf("result file: %w", err)
	}

	date := u.now().Format("20060102")
	branch := fmt.Sprintf("%s_single_%s", u.branchPrefix, date)
	if modelName != "" {
		branch = fmt.Sprintf("%s_%s_%s", u.branchPrefix, SanitizeBranchName(modelName), date)
	}

	if err := u.store.CreateBranch(ctx, u.repo, branch, u.sourceBranch); err != nil {
		// Branch may exist from an earlier upload of the same model.
		slog.Warn("branch creation failed", "branch", branch, "error", err)
	}

	content, err := os.ReadFile(resultFile)
	if err != nil {
		return fmt.Errorf("read result file: %w", err)
	}

	filename := filepath.Base(resultFile)
	remotePath := fmt.Sprintf("results/%s/%s", date, filename)
	if err := u.store.UploadObject(ctx, u.repo, branch, remotePath, content); err != nil {
		return fmt.Errorf("upload %s: %w", filename, err)
	}

	message := fmt.Sprintf("Single result upload: %s\nTimestamp: %s", filename, date)
	if modelName != "" {
		message += "\nModel: " + modelName
	}
	commitID, err := u.store.Commit(ctx, u.repo, branch, message)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.Info("result uploaded", "file", filename, "branch", branch, "commit", commitID)
	return nil
}

type configSnapshot struct {
	LakeFSEndpoint    string            `json:"lakefs_endpoint,omitempty"`
	LakeFSRepository  string            `json:"lakefs_repository"`
	MLflowTrackingURI string            `json:"mlflow_tracking_uri,omitempty"`
	ExperimentTags    map[string]string `json:"experiment_tags,omitempty"`
}

type experimentMetadata struct {
	ExperimentID   string         `json:"experiment_id"`
	Timestamp      string         `json:"timestamp"`
	Platform       string         `json:"platform"`
	GoVersion      string         `json:"go_version"`
	Hostname       string         `json:"hostname"`
	ResultsDir     string         `json:"results_directory"`
	UploadedFiles  []string       `json:"uploaded_files"`
	FileCount      int            `json:"file_count"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	ConfigSnapshot configSnapshot `json:"config_snapshot"`
}

// UploadAll pushes every answer file under resultsDir onto a fresh
// timestamped branch, together with an experiment-metadata object, and
// records per-file metrics to the tracker when one is configured. Individual
// file failures are collected; only a fully empty upload is an error.
func (u *Uploader) UploadAll(ctx context.Context, resultsDir string) error {
	files, err := filepath.Glob(filepath.Join(resultsDir, "*.jsonl"))
	if err != nil {
		return fmt.Errorf("list result files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w in %s", ErrNoResults, resultsDir)
	}
	slog.Info("uploading results", "dir", resultsDir, "files", len(files))

	timestamp := u.now().Format("20060102_150405")
	branch := fmt.Sprintf("%s_%s", u.branchPrefix, timestamp)
	if err := u.store.CreateBranch(ctx, u.repo, branch, u.sourceBranch); err != nil {
		slog.Warn("branch creation failed", "branch", branch, "error", err)
	}

	var trackerRunID string
	if u.tracker != nil {
		trackerRunID = u.startTrackerRun(ctx, timestamp, branch, len(files))
	}

	var uploaded, failed []string
	for _, local := range files {
		filename := filepath.Base(local)
		remotePath := fmt.Sprintf("results/%s/%s", timestamp, filename)

		content, err := os.ReadFile(local)
		if err != nil {
			slog.Warn("read result file failed", "file", filename, "error", err)
			failed = append(failed, filename)
			continue
		}
		if err := u.store.UploadObject(ctx, u.repo, branch, remotePath, content); err != nil {
			slog.Warn("upload failed", "file", filename, "error", err)
			failed = append(failed, filename)
			continue
		}
		uploaded = append(uploaded, remotePath)
		slog.Info("uploaded", "file", filename, "remote", remotePath)

		if trackerRunID != "" {
			u.logFileMetrics(ctx, trackerRunID, local, filename)
		}
	}

	if len(uploaded) == 0 {
		return fmt.Errorf("%w: all %d uploads failed", ErrNoResults, len(files))
	}
	resultCount := len(uploaded)

	metadataPath := fmt.Sprintf("results/%s/experiment_metadata.json", timestamp)
	if err := u.uploadMetadata(ctx, branch, metadataPath, resultsDir, uploaded); err != nil {
		slog.Warn("metadata upload failed", "error", err)
	} else {
		uploaded = append(uploaded, metadataPath)
	}

	commitID, err := u.store.Commit(ctx, u.repo, branch, commitMessage(timestamp, uploaded, failed))
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.Info("results committed", "branch", branch, "commit", commitID,
		"uploaded", len(uploaded), "failed", len(failed))

	if trackerRunID != "" {
		u.finishTrackerRun(ctx, trackerRunID, commitID, branch, resultCount, len(failed), len(files))
	}
	return nil
}

func (u *Uploader) startTrackerRun(ctx context.Context, timestamp, branch string, fileCount int) string {
	expID, err := u.tracker.GetOrCreateExperiment(ctx, u.experiment)
	if err != nil {
		slog.Warn("tracker experiment unavailable", "error", err)
		return ""
	}

	tags := map[string]string{
		"experiment_timestamp": timestamp,
		"lakefs_branch":        branch,
		"lakefs_repository":    u.repo,
		"results_count":        fmt.Sprintf("%d", fileCount),
	}
	for k, v := range u.tags {
		tags[k] = v
	}

	runID, err := u.tracker.CreateRun(ctx, expID, "benchmark_"+timestamp, tags)
	if err != nil {
		slog.Warn("tracker run creation failed", "error", err)
		return ""
	}

	params := []mlflow.Param{
		{Key: "platform", Value: runtime.GOOS + "/" + runtime.GOARCH},
		{Key: "go_version", Value: runtime.Version()},
	}
	if err := u.tracker.LogBatch(ctx, runID, params, nil); err != nil {
		slog.Warn("tracker param logging failed", "error", err)
	}
	return runID
}

func (u *Uploader) logFileMetrics(ctx context.Context, runID, local, filename string) {
	records, err := results.ReadFile(local)
	if err != nil {
		slog.Warn("result parsing failed", "file", filename, "error", err)
		return
	}
	prefix := strings.ReplaceAll(strings.TrimSuffix(filename, ".jsonl"), "-", "_")
	stats := results.FileStats(records, prefix)
	if len(stats) == 0 {
		return
	}
	if err := u.tracker.LogBatch(ctx, runID, nil, mlflow.MetricsFromMap(stats)); err != nil {
		slog.Warn("tracker metric logging failed", "file", filename, "error", err)
		return
	}
	slog.Info("benchmark metrics logged", "file", filename, "metrics", len(stats))
}

func (u *Uploader) finishTrackerRun(ctx context.Context, runID, commitID, branch string, uploaded, failed, total int) {
	metrics := map[string]float64{
		"uploaded_files_count": float64(uploaded),
		"failed_files_count":   float64(failed),
		"total_files_count":    float64(total),
		"upload_success_rate":  float64(uploaded) / float64(total),
	}
	params := []mlflow.Param{
		{Key: "lakefs_commit_id", Value: commitID},
		{Key: "lakefs_branch", Value: branch},
		{Key: "lakefs_repository", Value: u.repo},
	}
	if err := u.tracker.LogBatch(ctx, runID, params, mlflow.MetricsFromMap(metrics)); err != nil {
		slog.Warn("tracker summary logging failed", "error", err)
	}
	if err := u.tracker.EndRun(ctx, runID); err != nil {
		slog.Warn("tracker run close failed", "error", err)
	}
}

func (u *Uploader) uploadMetadata(ctx context.Context, branch, remotePath, resultsDir string, uploaded []string) error {
	hostname, _ := os.Hostname()

	var totalSize int64
	for _, remote := range uploaded {
		local := filepath.Join(resultsDir, filepath.Base(remote))
		if info, err := os.Stat(local); err == nil {
			totalSize += info.Size()
		}
	}

	meta := experimentMetadata{
		ExperimentID:   uuid.NewString(),
		Timestamp:      u.now().Format(time.RFC3339),
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
		GoVersion:      runtime.Version(),
		Hostname:       hostname,
		ResultsDir:     resultsDir,
		UploadedFiles:  uploaded,
		FileCount:      len(uploaded),
		TotalSizeBytes: totalSize,
		ConfigSnapshot: configSnapshot{
			LakeFSEndpoint:    u.storeEndpoint,
			LakeFSRepository:  u.repo,
			MLflowTrackingURI: u.trackingURI,
			ExperimentTags:    u.tags,
		},
	}

	content, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return u.store.UploadObject(ctx, u.repo, branch, remotePath, content)
}

func commitMessage(timestamp string, uploaded, failed []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Benchmark results from %s\n\n", timestamp)
	fmt.Fprintf(&b, "Uploaded %d files:\n", len(uploaded))
	for _, f := range uploaded {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\nFailed to upload %d files:\n", len(failed))
		for _, f := range failed {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}
