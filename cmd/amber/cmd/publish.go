package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/amber/internal/remote"
)

var publishCmd = &cobra.Command{
	Use:   "publish <dir> <ref>",
	Short: "Publish a repository to an OCI registry",
	Long:  "Upload a repository directory, descriptor and every file it references, to an OCI registry.",
	Args:  cobra.ExactArgs(2),
	RunE:  runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func newRemote(ref string) (*remote.OCIRemote, error) {
	r, err := remote.NewOCIRemote(ref, remote.NewKeychainAuthenticator())
	if err != nil {
		return nil, err
	}
	r.SetConcurrency(viper.GetInt("workers"))
	r.SetLogger(newLogger())
	return r, nil
}

func runPublish(cmd *cobra.Command, args []string) error {
	dir, ref := args[0], args[1]

	r, err := newRemote(ref)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Publishing %s to %s...\n", dir, r)

	res, err := r.Publish(cmd.Context(), dir)
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Done. %d files in %d layers, %d -> %d bytes\n",
		res.Files, res.Layers, res.Raw, res.Compressed)
	fmt.Println(res.Ref + "@" + res.Digest)
	return nil
}
