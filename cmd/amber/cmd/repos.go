package cmd

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/aweris/amber/internal/ident"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List known repositories",
	Long:  "List every repository recorded in the registry with the root it was last listed from.",
	Args:  cobra.NoArgs,
	RunE:  runRepos,
}

func init() {
	rootCmd.AddCommand(reposCmd)
}

func runRepos(cmd *cobra.Command, args []string) (err error) {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := reg.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := reg.Load(cmd.Context()); err != nil {
		return err
	}

	roots := reg.All()
	keys := make([]ident.ID, 0, len(roots))
	for k := range roots {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b ident.ID) int { return cmp.Compare(a.Hex(), b.Hex()) })

	if len(keys) == 0 {
		fmt.Println("(no repositories)")
		return nil
	}
	for _, k := range keys {
		fmt.Printf("%s\t%s\n", k.Hex()[:16], roots[k])
	}
	return nil
}
