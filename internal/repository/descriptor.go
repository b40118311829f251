package repository

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/aweris/amber/internal/ident"
)

// Wire records of the descriptor file. Key names are fixed by the tool that
// authors descriptors.
type descriptorFile struct {
	Version *string                `json:"version"`
	UUID    *string                `json:"uuid"`
	Entries map[string]entryRecord `json:"entries"`
	Tags    map[string]int         `json:"tags"`
}

type entryRecord struct {
	Name           string                   `json:"name"`
	Description    string                   `json:"description"`
	FileType       string                   `json:"file_type"`
	HostType       string                   `json:"blen_type"`
	Tags           []string                 `json:"tags"`
	Variants       map[string]variantRecord `json:"variants"`
	VariantDefault *string                  `json:"variant_default"`
}

type variantRecord struct {
	Name            string                    `json:"name"`
	Description     string                    `json:"description"`
	Revisions       map[string]revisionRecord `json:"revisions"`
	RevisionDefault *string                   `json:"revision_default"`
}

type revisionRecord struct {
	Comment   string  `json:"comment"`
	Path      string  `json:"path"`
	Size      int64   `json:"size"`
	Timestamp float64 `json:"timestamp"`
	Preview   string  `json:"preview,omitempty"`
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Decode parses a descriptor and unpacks every hex identifier. Entry
// identifiers are composed from the repository identifier and the entry key.
func Decode(data []byte) (*Repository, error) {
	var f descriptorFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, malformed("%v", err)
	}
	if f.Version == nil || *f.Version != SupportedVersion {
		v := ""
		if f.Version != nil {
			v = *f.Version
		}
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, v)
	}
	if f.UUID == nil {
		return nil, malformed("missing uuid")
	}
	if f.Entries == nil {
		return nil, malformed("missing entries")
	}

	repoID, err := ident.ParseHex(*f.UUID)
	if err != nil {
		return nil, malformed("repository uuid: %v", err)
	}

	repo := &Repository{
		ID:      repoID,
		Version: *f.Version,
		Entries: make(map[ident.ID]*Entry, len(f.Entries)),
		Tags:    make(map[string]int, len(f.Tags)),
	}
	for name, prio := range f.Tags {
		repo.Tags[name] = prio
	}

	for key, rec := range f.Entries {
		asset, err := hex.DecodeString(key)
		if err != nil || len(asset) > 8 {
			return nil, malformed("entry key %q", key)
		}
		e, err := decodeEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", key, err)
		}
		e.ID = ident.Compose(repoID, asset)
		if _, dup := repo.Entries[e.ID]; dup {
			return nil, malformed("duplicate entry key %q", key)
		}
		repo.Entries[e.ID] = e
	}
	return repo, nil
}

func decodeEntry(rec entryRecord) (*Entry, error) {
	if rec.VariantDefault == nil {
		return nil, malformed("missing variant_default")
	}
	def, err := ident.ParseHex(*rec.VariantDefault)
	if err != nil {
		return nil, malformed("variant_default: %v", err)
	}
	e := &Entry{
		Name:           rec.Name,
		Description:    rec.Description,
		FileType:       rec.FileType,
		HostType:       rec.HostType,
		Tags:           rec.Tags,
		Variants:       make(map[ident.ID]*Variant, len(rec.Variants)),
		DefaultVariant: def,
	}
	for key, vrec := range rec.Variants {
		id, err := ident.ParseHex(key)
		if err != nil {
			return nil, malformed("variant key %q", key)
		}
		v, err := decodeVariant(vrec)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", key, err)
		}
		v.ID = id
		e.Variants[id] = v
	}
	if _, ok := e.Variants[def]; !ok {
		return nil, malformed("variant_default %s names no variant", def.Hex())
	}
	return e, nil
}

func decodeVariant(rec variantRecord) (*Variant, error) {
	if rec.RevisionDefault == nil {
		return nil, malformed("missing revision_default")
	}
	def, err := ident.ParseHex(*rec.RevisionDefault)
	if err != nil {
		return nil, malformed("revision_default: %v", err)
	}
	v := &Variant{
		Name:            rec.Name,
		Description:     rec.Description,
		Revisions:       make(map[ident.ID]*Revision, len(rec.Revisions)),
		DefaultRevision: def,
	}
	for key, rrec := range rec.Revisions {
		id, err := ident.ParseHex(key)
		if err != nil {
			return nil, malformed("revision key %q", key)
		}
		v.Revisions[id] = &Revision{
			ID:        id,
			Size:      rrec.Size,
			Timestamp: rrec.Timestamp,
			Path:      rrec.Path,
			Comment:   rrec.Comment,
			Preview:   rrec.Preview,
		}
	}
	if _, ok := v.Revisions[def]; !ok {
		return nil, malformed("revision_default %s names no revision", def.Hex())
	}
	return v, nil
}

// Encode serializes a repository, repacking identifiers to hex. Entry keys
// carry only the asset half of the entry identifier.
func Encode(repo *Repository) ([]byte, error) {
	version := repo.Version
	if version == "" {
		version = SupportedVersion
	}
	uuid := repo.ID.Hex()
	f := descriptorFile{
		Version: &version,
		UUID:    &uuid,
		Entries: make(map[string]entryRecord, len(repo.Entries)),
		Tags:    repo.Tags,
	}
	if f.Tags == nil {
		f.Tags = map[string]int{}
	}
	for id, e := range repo.Entries {
		f.Entries[hex.EncodeToString(id[8:])] = encodeEntry(e)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}
	return data, nil
}

func encodeEntry(e *Entry) entryRecord {
	def := e.DefaultVariant.Hex()
	rec := entryRecord{
		Name:           e.Name,
		Description:    e.Description,
		FileType:       e.FileType,
		HostType:       e.HostType,
		Tags:           e.Tags,
		Variants:       make(map[string]variantRecord, len(e.Variants)),
		VariantDefault: &def,
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	for id, v := range e.Variants {
		vdef := v.DefaultRevision.Hex()
		vrec := variantRecord{
			Name:            v.Name,
			Description:     v.Description,
			Revisions:       make(map[string]revisionRecord, len(v.Revisions)),
			RevisionDefault: &vdef,
		}
		for rid, r := range v.Revisions {
			vrec.Revisions[rid.Hex()] = revisionRecord{
				Comment:   r.Comment,
				Path:      r.Path,
				Size:      r.Size,
				Timestamp: r.Timestamp,
				Preview:   r.Preview,
			}
		}
		rec.Variants[id.Hex()] = vrec
	}
	return rec
}
