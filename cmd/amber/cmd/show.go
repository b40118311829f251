package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/aweris/amber"
	"github.com/aweris/amber/internal/ident"
)

var showCmd = &cobra.Command{
	Use:   "show <path> <entry> [variant] [revision]",
	Short: "Show an entry of a repository",
	Long:  "Show the variants and revisions of a repository entry. Omitted identifiers select every variant or revision.",
	Args:  cobra.RangeArgs(2, 4),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) (err error) {
	ids := [3]ident.ID{}
	for i, arg := range args[1:] {
		if ids[i], err = ident.ParseHex(arg); err != nil {
			return fmt.Errorf("invalid identifier %q: %w", arg, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := list(ctx, e, args[0]); err != nil {
		return err
	}
	entry, err := e.EntryByIdentifier(ids[0], ids[1], ids[2])
	if err != nil {
		return err
	}
	printEntry(entry)
	return nil
}

func printEntry(entry amber.Entry) {
	fmt.Printf("%s (%s)\n", entry.Name, entry.ID)
	if entry.Description != "" {
		fmt.Printf("  %s\n", entry.Description)
	}
	fmt.Printf("  type: %s  host type: %s  tags: %v\n", entry.Type, entry.HostType, entry.Tags)
	fmt.Printf("  path: %s\n", entry.RelPath)
	for i, v := range entry.Variants {
		marker := " "
		if i == entry.ActiveVariant {
			marker = "*"
		}
		fmt.Printf("  %s variant %s (%s)\n", marker, v.Name, v.ID)
		for j, r := range v.Revisions {
			marker := " "
			if j == v.ActiveRevision {
				marker = "*"
			}
			fmt.Printf("    %s revision %s  size %d  %s  %s\n", marker, r.ID, r.Size, r.Time.Format(time.DateTime), r.Comment)
		}
	}
}
