package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"specbench/internal/config"
	"specbench/internal/logging"
	"specbench/internal/mlflow"
	"specbench/internal/speed"
)

func newSpeedCmd() *cobra.Command {
	var (
		modelName     string
		modelFile     string
		baselineFile  string
		tokenizerPath string
	)

	cmd := &cobra.Command{
		Use:   "speed",
		Short: "Compare a run against the baseline and record speedup metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(cfgPath)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Logging.Level)

			if err := cfg.ValidateMLflow(); err != nil {
				return fmt.Errorf("experiment tracker config: %w", err)
			}
			tracker, err := mlflow.NewClient(cfg.MLflow.TrackingURI, cfg.MLflow.Username, cfg.MLflow.Password)
			if err != nil {
				return err
			}

			analyzer := speed.NewAnalyzer(tracker, cfg.MLflow.ExperimentName)
			return analyzer.Run(cmd.Context(), modelName, modelFile, baselineFile, tokenizerPath)
		},
	}

	cmd.Flags().StringVar(&modelName, "model-name", "", "model name recorded with the comparison")
	cmd.Flags().StringVar(&modelFile, "model-file", "", "answer file of the model under test (.jsonl)")
	cmd.Flags().StringVar(&baselineFile, "baseline-file", "", "answer file of the baseline run (.jsonl)")
	cmd.Flags().StringVar(&tokenizerPath, "tokenizer-path", "", "tokenizer reference recorded with the comparison")
	_ = cmd.MarkFlagRequired("model-name")
	_ = cmd.MarkFlagRequired("model-file")
	_ = cmd.MarkFlagRequired("baseline-file")
	_ = cmd.MarkFlagRequired("tokenizer-path")
	return cmd
}
