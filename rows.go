package amber

import (
	"cmp"
	"slices"
	"time"

	"github.com/aweris/amber/internal/ident"
	"github.com/aweris/amber/internal/repository"
)

// TypeDir is the Entry type of directory rows, including the parent row.
const TypeDir = "DIR"

// Entry is a row handed to the host: a repository entry realized with a
// selection of its variants and revisions, or a directory.
type Entry struct {
	ID          ident.ID
	Name        string
	Description string
	Type        string // file type, or TypeDir
	HostType    string
	Tags        []string
	// RelPath is the path of the active revision, relative to the listed
	// root. Realize returns absolute paths instead.
	RelPath  string
	Variants []Variant
	// ActiveVariant indexes Variants; -1 when there is none.
	ActiveVariant int
}

type Variant struct {
	ID             ident.ID
	Name           string
	Description    string
	Revisions      []Revision
	ActiveRevision int
}

type Revision struct {
	ID        ident.ID
	Size      int64
	Timestamp float64
	Time      time.Time
	Comment   string
}

// Active returns the active variant and revision, or nil.
func (e *Entry) Active() (*Variant, *Revision) {
	if e.ActiveVariant < 0 || e.ActiveVariant >= len(e.Variants) {
		return nil, nil
	}
	v := &e.Variants[e.ActiveVariant]
	if v.ActiveRevision < 0 || v.ActiveRevision >= len(v.Revisions) {
		return v, nil
	}
	return v, &v.Revisions[v.ActiveRevision]
}

// Tag is a filter tag of the listed repository.
type Tag struct {
	Name     string
	Priority int
	Include  bool
	Exclude  bool
}

// AssetRef is a stored reference to a revision of an entry.
type AssetRef struct {
	Entry    ident.ID
	Variant  ident.ID
	Revision ident.ID
	// Set by UpdateCheck.
	Missing bool
	Reload  bool
}

func parentRow() Entry {
	return Entry{
		Type:          TypeDir,
		RelPath:       ParentDir,
		Variants:      []Variant{{Revisions: []Revision{{}}}},
		ActiveVariant: 0,
	}
}

func dirRow(d repository.Dir) Entry {
	return Entry{
		ID:      d.ID,
		Name:    d.Path,
		Type:    TypeDir,
		RelPath: d.Path,
		Variants: []Variant{{
			Revisions: []Revision{{
				Size:      d.Size,
				Timestamp: float64(d.ModTime.UnixNano()) / 1e9,
			}},
		}},
	}
}

func revisionRow(r *repository.Revision) Revision {
	return Revision{ID: r.ID, Size: r.Size, Timestamp: r.Timestamp, Time: r.Time(), Comment: r.Comment}
}

// sortedByName orders map values by name, then identifier.
func sortedByName[T any](m map[ident.ID]T, name func(T) string) []ident.ID {
	ids := make([]ident.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b ident.ID) int {
		if c := cmp.Compare(name(m[a]), name(m[b])); c != 0 {
			return c
		}
		return cmp.Compare(a.Hex(), b.Hex())
	})
	return ids
}

// realize builds the row of e for a selection. A zero variant lists every
// variant with every revision, marking the defaults active; a zero revision
// lists every revision of the chosen variant; otherwise only the chosen
// revision is listed. RelPath is the path of the resulting active revision.
// bareRow carries the entry fields only, with no RelPath or variants.
func bareRow(e *repository.Entry) Entry {
	return Entry{
		ID:            e.ID,
		Name:          e.Name,
		Description:   e.Description,
		Type:          e.FileType,
		HostType:      e.HostType,
		Tags:          e.Tags,
		ActiveVariant: -1,
	}
}

func realize(e *repository.Entry, variantID, revisionID ident.ID) (Entry, error) {
	row := bareRow(e)

	v, r, err := e.Resolve(variantID, revisionID)
	if err != nil {
		return Entry{}, err
	}
	row.RelPath = r.Path

	variants := []ident.ID{v.ID}
	if variantID.IsZero() {
		variants = sortedByName(e.Variants, func(v *repository.Variant) string { return v.Name })
	}
	for _, vid := range variants {
		variant := e.Variants[vid]
		vrow := Variant{
			ID:             variant.ID,
			Name:           variant.Name,
			Description:    variant.Description,
			ActiveRevision: -1,
		}
		if vid == v.ID {
			row.ActiveVariant = len(row.Variants)
		}

		if !revisionID.IsZero() && vid == v.ID {
			vrow.Revisions = []Revision{revisionRow(r)}
			vrow.ActiveRevision = 0
		} else {
			for _, rid := range sortedByName(variant.Revisions, func(r *repository.Revision) string { return r.Path }) {
				if rid == variant.DefaultRevision {
					vrow.ActiveRevision = len(vrow.Revisions)
				}
				vrow.Revisions = append(vrow.Revisions, revisionRow(variant.Revisions[rid]))
			}
		}
		row.Variants = append(row.Variants, vrow)
	}
	return row, nil
}
