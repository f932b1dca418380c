package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"specbench/internal/config"
	"specbench/internal/coordinator"
	"specbench/internal/lakefs"
	"specbench/internal/logging"
	"specbench/internal/mlflow"
	"specbench/internal/report"
	"specbench/internal/speed"
	"specbench/internal/upload"
)

func newRunCmd() *cobra.Command {
	var (
		benchName   string
		temperature float64
		variants    []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark batch: inference, upload and speed analysis per variant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), benchName, temperature, variants)
		},
	}

	cmd.Flags().StringVar(&benchName, "bench", "", "benchmark name (default from config)")
	cmd.Flags().Float64Var(&temperature, "temperature", -1, "sampling temperature (default from config)")
	cmd.Flags().StringSliceVar(&variants, "variants", nil, "subset of variants to run, e.g. vanilla,eagle")
	return cmd
}

func runBatch(ctx context.Context, benchName string, temperature float64, variants []string) error {
	cfg, haveConfig, err := loadRunConfig()
	if err != nil {
		return err
	}

	logPath, logCloser, err := logging.SetupWithFile(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.Info("run log opened", "file", logPath)

	if !haveConfig {
		slog.Warn("config file missing, upload and speed analysis will be skipped", "path", cfgPath)
	}

	installInterruptHandler(os.Exit)

	if benchName == "" {
		benchName = cfg.Benchmark.BenchName
	}
	if temperature < 0 {
		temperature = cfg.Benchmark.Temperature
	}

	descriptors, err := coordinator.FilterDescriptors(coordinator.DefaultDescriptors(benchName, temperature), variants)
	if err != nil {
		return err
	}

	var uploader coordinator.Uploader
	var analyzer coordinator.Analyzer
	if haveConfig {
		uploader = buildUploader(cfg)
		analyzer = buildAnalyzer(cfg)
	}

	slog.Info("starting benchmark batch",
		"run_id", uuid.NewString(),
		"bench", benchName,
		"temperature", temperature,
		"variants", len(descriptors),
		"visible_devices", os.Getenv("CUDA_VISIBLE_DEVICES"))

	coord := &coordinator.Coordinator{
		ResultsDir:    cfg.Benchmark.ResultsDir,
		BenchName:     benchName,
		Temperature:   temperature,
		TokenizerPath: os.Getenv(coordinator.EnvBaseModelPath),
		Runner:        &coordinator.ExecRunner{},
		Uploader:      uploader,
		Analyzer:      analyzer,
	}

	results, err := coord.RunBatch(ctx, descriptors)
	if err != nil {
		return err
	}

	report.WriteTable(results, os.Stdout)
	return nil
}

func loadRunConfig() (*config.Config, bool, error) {
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return config.Default(), false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

func buildUploader(cfg *config.Config) coordinator.Uploader {
	if err := cfg.ValidateLakeFS(); err != nil {
		slog.Warn("object store not configured, uploads will be skipped", "error", err)
		return nil
	}
	store, err := lakefs.NewClient(cfg.LakeFS.Endpoint, cfg.LakeFS.AccessKey, cfg.LakeFS.SecretKey)
	if err != nil {
		slog.Warn("object store client unavailable, uploads will be skipped", "error", err)
		return nil
	}
	return upload.New(store, cfg.LakeFS.Repository, cfg.LakeFS.BranchPrefix,
		upload.WithEndpoints(cfg.LakeFS.Endpoint, cfg.MLflow.TrackingURI))
}

func buildAnalyzer(cfg *config.Config) coordinator.Analyzer {
	if err := cfg.ValidateMLflow(); err != nil {
		slog.Warn("experiment tracker not configured, speed analysis will be skipped", "error", err)
		return nil
	}
	tracker, err := mlflow.NewClient(cfg.MLflow.TrackingURI, cfg.MLflow.Username, cfg.MLflow.Password)
	if err != nil {
		slog.Warn("experiment tracker client unavailable, speed analysis will be skipped", "error", err)
		return nil
	}
	return speed.NewAnalyzer(tracker, cfg.MLflow.ExperimentName)
}

// installInterruptHandler terminates the whole batch on SIGINT/SIGTERM with
// the conventional interrupted status. Partial artifacts stay on disk; the
// next run reuses or finishes them.
func installInterruptHandler(exit func(int)) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		interrupted(<-sigCh, exit)
	}()
}

func interrupted(sig os.Signal, exit func(int)) {
	slog.Warn("benchmark batch interrupted", "signal", sig.String())
	exit(exitInterrupted)
}
