package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"specbench/internal/config"
	"specbench/internal/lakefs"
	"specbench/internal/logging"
	"specbench/internal/mlflow"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify connectivity to the object store and the experiment tracker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(cfgPath)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Logging.Level)

			storeOK := checkStore(cmd.Context(), cfg)
			trackerOK := checkTracker(cmd.Context(), cfg)

			if !storeOK || !trackerOK {
				return fmt.Errorf("connectivity check failed (store ok: %v, tracker ok: %v)", storeOK, trackerOK)
			}
			slog.Info("all connections OK")
			return nil
		},
	}
}

func checkStore(ctx context.Context, cfg *config.Config) bool {
	if err := cfg.ValidateLakeFS(); err != nil {
		slog.Error("object store config invalid", "error", err)
		return false
	}
	client, err := lakefs.NewClient(cfg.LakeFS.Endpoint, cfg.LakeFS.AccessKey, cfg.LakeFS.SecretKey)
	if err != nil {
		slog.Error("object store client", "error", err)
		return false
	}

	repos, err := client.ListRepositories(ctx)
	if err != nil {
		slog.Error("object store unreachable", "endpoint", cfg.LakeFS.Endpoint, "error", err)
		return false
	}

	found := false
	for _, r := range repos {
		if r.ID == cfg.LakeFS.Repository {
			found = true
			break
		}
	}
	slog.Info("object store reachable", "repositories", len(repos))
	if !found {
		slog.Warn("configured repository not found", "repository", cfg.LakeFS.Repository)
	}
	return true
}

func checkTracker(ctx context.Context, cfg *config.Config) bool {
	if err := cfg.ValidateMLflow(); err != nil {
		slog.Error("experiment tracker config invalid", "error", err)
		return false
	}
	client, err := mlflow.NewClient(cfg.MLflow.TrackingURI, cfg.MLflow.Username, cfg.MLflow.Password)
	if err != nil {
		slog.Error("experiment tracker client", "error", err)
		return false
	}

	experiments, err := client.ListExperiments(ctx)
	if err != nil {
		slog.Error("experiment tracker unreachable", "uri", cfg.MLflow.TrackingURI, "error", err)
		return false
	}

	found := false
	for _, e := range experiments {
		if e.Name == cfg.MLflow.ExperimentName {
			found = true
			break
		}
	}
	slog.Info("experiment tracker reachable", "experiments", len(experiments))
	if !found {
		slog.Info("experiment will be created on first run", "name", cfg.MLflow.ExperimentName)
	}
	return true
}
