// Package amber browses versioned asset repositories without blocking the
// caller.
//
// A repository is a directory holding a descriptor (__amber_db.json) that
// lists entries, their variants and the revisions backing each variant. Any
// other directory is listed as plain directory rows. Repositories live on
// the local filesystem or in an OCI registry ("oci://registry/repo:tag").
//
// The host drives all work by polling. Each call advances the job it names
// by one bounded increment; blocking I/O runs on a worker pool and its
// results are merged on the next poll:
//
//	e, _ := amber.New(amber.WithWorkers(8))
//	defer e.Close()
//
//	job := e.List(0, "/srv/assets/wood")
//	for e.Status(job).IsRunning() {
//	    time.Sleep(50 * time.Millisecond)
//	    job = e.List(job, "/srv/assets/wood")
//	    fmt.Printf("%.0f%%\n", e.Progress(job)*100)
//	}
//
//	// Filter and sort, then read rows in blocks
//	e.SortFilter(true, true, amber.FilterParams{Sort: amber.SortName})
//	rows := e.EntriesBlock(0, e.FilteredCount())
//
// Listing a different path cancels the previous job. Kill cancels a job
// explicitly; cancellation is not an error and leaves the job valid and
// idle.
//
// Every listed repository is remembered in a registry (repository key →
// root), so stored references can be checked and resolved later:
//
//	refs = e.UpdateCheck(ctx, refs)
//	rows, err := e.Realize(ctx, refs)
package amber
