package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"specbench/internal/config"
	"specbench/internal/lakefs"
	"specbench/internal/logging"
	"specbench/internal/mlflow"
	"specbench/internal/upload"
)

func newUploadCmd() *cobra.Command {
	var (
		resultsDir string
		singleFile string
		modelName  string
		noMLflow   bool
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload benchmark answer files to the object store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(cfgPath)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Logging.Level)

			if err := cfg.ValidateLakeFS(); err != nil {
				return fmt.Errorf("object store config: %w", err)
			}
			store, err := lakefs.NewClient(cfg.LakeFS.Endpoint, cfg.LakeFS.AccessKey, cfg.LakeFS.SecretKey)
			if err != nil {
				return err
			}

			opts := []upload.Option{upload.WithEndpoints(cfg.LakeFS.Endpoint, cfg.MLflow.TrackingURI)}
			if !noMLflow && singleFile == "" {
				if err := cfg.ValidateMLflow(); err == nil {
					tracker, err := mlflow.NewClient(cfg.MLflow.TrackingURI, cfg.MLflow.Username, cfg.MLflow.Password)
					if err != nil {
						return err
					}
					opts = append(opts, upload.WithTracker(tracker, cfg.MLflow.ExperimentName, cfg.Experiment.DefaultTags))
				}
			}

			u := upload.New(store, cfg.LakeFS.Repository, cfg.LakeFS.BranchPrefix, opts...)

			if singleFile != "" {
				return u.UploadSingle(cmd.Context(), singleFile, modelName)
			}
			dir := resultsDir
			if dir == "" {
				dir = cfg.Benchmark.ResultsDir
			}
			return u.UploadAll(cmd.Context(), dir)
		},
	}

	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "results directory (default from config)")
	cmd.Flags().StringVar(&singleFile, "single-file", "", "upload a single answer file instead of the whole directory")
	cmd.Flags().StringVar(&modelName, "model-name", "", "model name used for the single-file branch")
	cmd.Flags().BoolVar(&noMLflow, "no-mlflow", false, "skip experiment-tracker logging")
	return cmd
}
