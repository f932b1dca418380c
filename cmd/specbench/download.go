package main

import (
	"path"

	"github.com/spf13/cobra"

	"specbench/internal/hub"
	"specbench/internal/logging"
)

func newDownloadCmd() *cobra.Command {
	var (
		repo string
		dest string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a model snapshot from the model hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Setup("info")
			if dest == "" {
				dest = path.Join("models", path.Base(repo))
			}
			d := hub.NewDownloader()
			return d.Snapshot(cmd.Context(), repo, dest)
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "hub repository, e.g. yuhuili/EAGLE-Vicuna-7B-v1.3")
	cmd.Flags().StringVar(&dest, "dest", "", "destination directory (default models/<repo name>)")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}
