package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull <ref> <dir>",
	Short: "Pull a repository from an OCI registry",
	Long:  "Download a published repository into a local directory.",
	Args:  cobra.ExactArgs(2),
	RunE:  runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) error {
	ref, dir := args[0], args[1]

	r, err := newRemote(ref)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Pulling %s...\n", r)

	snap, err := r.Fetch(cmd.Context())
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	if err := snap.Pull(cmd.Context(), dir); err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Done. %d files in %s\n", len(snap.Files()), dir)
	return nil
}
