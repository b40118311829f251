package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aweris/amber/internal/repository"
)

var buildCmd = &cobra.Command{
	Use:   "build <dir>",
	Short: "Write a repository descriptor",
	Long:  "Scan a directory of asset files and write a repository descriptor describing them.",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().String("preview-suffix", repository.DefaultPreviewSuffix, "suffix of preview files")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	dir := args[0]
	suffix, _ := cmd.Flags().GetString("preview-suffix")

	repo, err := repository.Build(cmd.Context(), dir, repository.BuildOptions{
		PreviewSuffix: suffix,
		Logger:        newLogger(),
	})
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	data, err := repository.Encode(repo)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, repository.DescriptorName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Wrote %s: %d entries, %d tags, repository %s\n",
		path, len(repo.Entries), len(repo.Tags), repo.ID)
	return nil
}
