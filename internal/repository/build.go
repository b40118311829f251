package repository

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aweris/amber/internal/ident"
)

// DefaultPreviewSuffix marks files holding the preview of a sibling asset:
// "wood.png.preview" is the preview of "wood.png".
const DefaultPreviewSuffix = ".preview"

const defaultVariantName = "default"

// BuildOptions configures Build.
type BuildOptions struct {
	Generator     *ident.Generator
	PreviewSuffix string
	Logger        *slog.Logger
}

var fileTypes = map[string]string{
	".blend":  "BLENDER",
	".blend1": "BACKUP",
	".png":    "IMAGE",
	".jpg":    "IMAGE",
	".jpeg":   "IMAGE",
	".exr":    "IMAGE",
	".tif":    "IMAGE",
	".tiff":   "IMAGE",
	".mp4":    "MOVIE",
	".mov":    "MOVIE",
	".avi":    "MOVIE",
	".py":     "SCRIPT",
	".ttf":    "FONT",
	".otf":    "FONT",
	".wav":    "SOUND",
	".ogg":    "SOUND",
	".mp3":    "SOUND",
	".flac":   "SOUND",
	".txt":    "TEXT",
	".md":     "TEXT",
	".json":   "TEXT",
}

// FileType classifies a file by extension. Unknown extensions map to "".
func FileType(name string) string {
	return fileTypes[strings.ToLower(filepath.Ext(name))]
}

// Build walks dir and produces a repository describing every regular file
// below it: one entry per file, tagged with its parent directories, with a
// single default variant holding one revision. Hidden files, the descriptor
// and preview files are skipped. Files whose identifiers cannot be generated
// are skipped with a warning.
func Build(ctx context.Context, dir string, opts BuildOptions) (*Repository, error) {
	gen := opts.Generator
	if gen == nil {
		gen = ident.Default
	}
	suffix := opts.PreviewSuffix
	if suffix == "" {
		suffix = DefaultPreviewSuffix
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}

	var files []string
	previews := make(map[string]string)
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if path != abs && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || name == DescriptorName {
			return nil
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if target, ok := strings.CutSuffix(rel, suffix); ok {
			previews[target] = rel
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)

	used := ident.Set{}
	base := []byte(filepath.Base(abs))
	if len(base) > 8 {
		base = base[:8]
	}
	repoID, err := gen.Generate(used, append(base, '|'), []byte(abs), filepath.Base(abs))
	if err != nil {
		return nil, fmt.Errorf("repository identifier: %w", err)
	}

	repo := &Repository{
		ID:      repoID,
		Version: SupportedVersion,
		Entries: make(map[ident.ID]*Entry, len(files)),
		Tags:    make(map[string]int),
	}

	for _, rel := range files {
		info, err := os.Stat(filepath.Join(abs, filepath.FromSlash(rel)))
		if err != nil {
			log.Warn("skipping unreadable file", "path", rel, "error", err)
			continue
		}
		e, err := buildEntry(gen, used, repo, abs, rel, info)
		if err != nil {
			log.Warn("skipping file", "path", rel, "error", err)
			continue
		}
		if _, r, err := e.Default(); err == nil {
			r.Preview = previews[rel]
		}
		repo.Entries[e.ID] = e
		for _, t := range e.Tags {
			repo.Tags[t]++
		}
	}
	return repo, nil
}

func buildEntry(gen *ident.Generator, used ident.Set, repo *Repository, root, rel string, info fs.FileInfo) (*Entry, error) {
	name := filepath.Base(rel)
	var tags []string
	if d := filepath.ToSlash(filepath.Dir(rel)); d != "." {
		tags = strings.Split(d, "/")
	}

	var entryID, assetID ident.ID
	for {
		var err error
		assetID, err = gen.Asset(used, root, name, tags)
		if err != nil {
			return nil, fmt.Errorf("asset identifier: %w", err)
		}
		// Only the second half of the asset identifier is kept in the entry
		// identifier, so uniqueness is checked on the composed value.
		entryID = ident.Compose(repo.ID, assetID[8:])
		if _, taken := repo.Entries[entryID]; !taken {
			break
		}
	}

	variantID, err := gen.Variant(used, assetID, defaultVariantName)
	if err != nil {
		return nil, fmt.Errorf("variant identifier: %w", err)
	}
	ts := float64(info.ModTime().UnixNano()) / 1e9
	revisionID, err := gen.Revision(used, variantID, 1, info.Size(), ts)
	if err != nil {
		return nil, fmt.Errorf("revision identifier: %w", err)
	}

	return &Entry{
		ID:       entryID,
		Name:     strings.TrimSuffix(name, filepath.Ext(name)),
		FileType: FileType(name),
		Tags:     tags,
		Variants: map[ident.ID]*Variant{
			variantID: {
				ID:   variantID,
				Name: defaultVariantName,
				Revisions: map[ident.ID]*Revision{
					revisionID: {
						ID:        revisionID,
						Size:      info.Size(),
						Timestamp: ts,
						Path:      rel,
					},
				},
				DefaultRevision: revisionID,
			},
		},
		DefaultVariant: variantID,
	}, nil
}
