package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/amber"
)

var lsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List a directory or repository",
	Long:  "List a local directory, a repository, or a published repository (oci://registry/repo:tag).",
	Args:  cobra.ExactArgs(1),
	RunE:  runLs,
}

func init() {
	flags := lsCmd.Flags()
	flags.String("search", "", "only show rows whose name or description contains this text")
	flags.String("sort", "name", "sort by name, time, size or host_type")
	flags.Bool("hidden", false, "show hidden directories")
	flags.StringSlice("type", nil, "only show entries of these file types (e.g. IMAGE,BLENDER)")
	flags.StringSlice("tag", nil, "only show entries carrying these tags")
	flags.StringSlice("exclude-tag", nil, "hide entries carrying these tags")
	rootCmd.AddCommand(lsCmd)
}

// list polls the engine until the listing of path is complete. Interrupting
// the context kills the job.
func list(ctx context.Context, e *amber.Engine, path string) error {
	interval := viper.GetDuration("poll_interval")
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	job := e.List(0, path)
	for e.Status(job).IsRunning() {
		select {
		case <-ctx.Done():
			e.Kill(job)
			return ctx.Err()
		case <-ticker.C:
		}
		job = e.List(job, path)
		fmt.Fprintf(os.Stderr, "\rListing %s... %3.0f%%", path, e.Progress(job)*100)
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

func runLs(cmd *cobra.Command, args []string) (err error) {
	path := args[0]
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

	if err := list(ctx, e, path); err != nil {
		return err
	}

	flags := cmd.Flags()
	params := amber.FilterParams{}
	params.Search, _ = flags.GetString("search")
	params.ShowHidden, _ = flags.GetBool("hidden")
	sortBy, _ := flags.GetString("sort")
	params.Sort = amber.ParseSortMethod(sortBy)
	params.FileTypes, _ = flags.GetStringSlice("type")
	include, _ := flags.GetStringSlice("tag")
	exclude, _ := flags.GetStringSlice("exclude-tag")

	if len(params.FileTypes) > 0 || len(include) > 0 || len(exclude) > 0 {
		params.UseFilter = true
		if len(params.FileTypes) == 0 {
			params.FileTypes = fileTypes(e)
		}
	}
	for _, tag := range include {
		if err := e.SetTagFilter(tag, true, false); err != nil {
			return err
		}
	}
	for _, tag := range exclude {
		if err := e.SetTagFilter(tag, false, true); err != nil {
			return err
		}
	}

	e.SortFilter(true, true, params)
	rows := e.EntriesBlock(0, e.FilteredCount())
	if len(rows) == 0 {
		fmt.Println("(no entries)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tNAME\tSIZE\tMODIFIED\tID")
	for _, row := range rows {
		name := row.Name
		if row.RelPath == amber.ParentDir {
			name = amber.ParentDir
		}
		var size int64
		var modified string
		if _, rev := row.Active(); rev != nil {
			size = rev.Size
			if rev.Timestamp > 0 {
				modified = time.Unix(int64(rev.Timestamp), 0).Format(time.DateTime)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", row.Type, name, size, modified, row.ID)
	}
	return w.Flush()
}

// fileTypes returns every file type of the current repository, so tag
// filters can run without restricting types.
func fileTypes(e *amber.Engine) []string {
	e.SortFilter(true, true, amber.FilterParams{})
	seen := make(map[string]bool)
	var types []string
	for _, row := range e.EntriesBlock(1, e.FilteredCount()) {
		if !seen[row.Type] {
			seen[row.Type] = true
			types = append(types, row.Type)
		}
	}
	return types
}
