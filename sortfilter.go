package amber

import (
	"cmp"
	"slices"
	"strings"

	"github.com/aweris/amber/internal/repository"
)

// SortMethod orders the filtered view.
type SortMethod int

const (
	SortName SortMethod = iota
	SortTime
	SortSize
	// SortHostType orders repository entries by host type. Directory rows
	// fall back to name order.
	SortHostType
)

func (m SortMethod) String() string {
	switch m {
	case SortName:
		return "name"
	case SortTime:
		return "time"
	case SortSize:
		return "size"
	case SortHostType:
		return "host_type"
	}
	return "unknown"
}

// ParseSortMethod maps a name returned by SortMethod.String back to the
// method. Unknown names sort by name.
func ParseSortMethod(s string) SortMethod {
	switch strings.ToLower(s) {
	case "time":
		return SortTime
	case "size":
		return SortSize
	case "host_type", "hosttype":
		return SortHostType
	}
	return SortName
}

// FilterParams are the criteria of SortFilter.
type FilterParams struct {
	// Search is matched as a substring of the name and description of
	// entries, or of the name of directories.
	Search string
	// UseFilter enables the type and tag filters below. Search applies
	// regardless.
	UseFilter bool
	// FileTypes lists the accepted entry file types.
	FileTypes []string
	// LibraryBrowsing restricts entries to HostTypes.
	LibraryBrowsing bool
	HostTypes       []string
	// ShowHidden keeps directories whose name starts with a dot.
	ShowHidden bool
	Sort       SortMethod
}

// view is the sorted, filtered projection of the listing served by
// EntriesBlock.
type view struct {
	entries []*repository.Entry
	dirs    []repository.Dir
}

func (v *view) reset() {
	v.entries = nil
	v.dirs = nil
}

func set(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func filterEntries(repo *repository.Repository, p FilterParams, include, exclude map[string]bool) []*repository.Entry {
	fileTypes := set(p.FileTypes)
	hostTypes := set(p.HostTypes)

	out := make([]*repository.Entry, 0, len(repo.Entries))
	for _, e := range repo.Entries {
		if p.Search != "" && !strings.Contains(e.Name+e.Description, p.Search) {
			continue
		}
		if p.UseFilter {
			if !fileTypes[e.FileType] {
				continue
			}
			if p.LibraryBrowsing && !hostTypes[e.HostType] {
				continue
			}
			if !e.HasTags(include, exclude) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// hidden reports whether a directory row is a dot directory. The parent
// row is never hidden.
func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && !strings.HasPrefix(name, ParentDir)
}

func filterDirs(dirs []repository.Dir, p FilterParams) []repository.Dir {
	out := make([]repository.Dir, 0, len(dirs))
	for _, d := range dirs {
		if p.Search != "" && !strings.Contains(d.Path, p.Search) {
			continue
		}
		if !p.ShowHidden && hidden(d.Path) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// defaultRevision returns the revision an entry is listed with, or nil.
func defaultRevision(e *repository.Entry) *repository.Revision {
	_, r, err := e.Default()
	if err != nil {
		return nil
	}
	return r
}

func revisionTime(e *repository.Entry) float64 {
	if r := defaultRevision(e); r != nil {
		return r.Timestamp
	}
	return 0
}

func revisionSize(e *repository.Entry) int64 {
	if r := defaultRevision(e); r != nil {
		return r.Size
	}
	return 0
}

// sortEntries is stable; entries comparing equal keep their order, with
// identifiers breaking ties in name order so map iteration never leaks
// into the view.
func sortEntries(es []*repository.Entry, m SortMethod) {
	byName := func(a, b *repository.Entry) int {
		if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.Hex(), b.ID.Hex())
	}
	slices.SortFunc(es, byName)

	switch m {
	case SortTime:
		slices.SortStableFunc(es, func(a, b *repository.Entry) int {
			return cmp.Compare(revisionTime(a), revisionTime(b))
		})
	case SortSize:
		slices.SortStableFunc(es, func(a, b *repository.Entry) int {
			return cmp.Compare(revisionSize(a), revisionSize(b))
		})
	case SortHostType:
		slices.SortStableFunc(es, func(a, b *repository.Entry) int {
			return cmp.Compare(a.HostType, b.HostType)
		})
	}
}

func sortDirs(ds []repository.Dir, m SortMethod) {
	switch m {
	case SortTime:
		slices.SortStableFunc(ds, func(a, b repository.Dir) int {
			return a.ModTime.Compare(b.ModTime)
		})
	case SortSize:
		slices.SortStableFunc(ds, func(a, b repository.Dir) int {
			return cmp.Compare(a.Size, b.Size)
		})
	default:
		slices.SortStableFunc(ds, func(a, b repository.Dir) int {
			return cmp.Compare(strings.ToLower(a.Path), strings.ToLower(b.Path))
		})
	}
}

// clamp bounds a half-open range to [0, n).
func clamp(start, end, n int) (int, int) {
	start = max(0, min(start, n))
	end = max(start, min(end, n))
	return start, end
}
