package amber

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("amber: not found")
	ErrNoRepository      = errors.New("amber: current listing is not a repository")
	ErrUnknownRepository = errors.New("amber: repository not registered")
	ErrUnknownTag        = errors.New("amber: unknown tag")
	ErrTagConflict       = errors.New("amber: tag cannot be both included and excluded")
	ErrNoPreview         = errors.New("amber: entry has no preview")
	ErrClosed            = errors.New("amber: engine closed")
)

// DescriptorError reports a descriptor that could not be read or decoded.
type DescriptorError struct {
	Path string
	Err  error
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("amber: descriptor %s: %v", e.Path, e.Err)
}

func (e *DescriptorError) Unwrap() error { return e.Err }
