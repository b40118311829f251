package amber

import "strings"

// Status is the set of flags describing a job.
type Status uint8

const (
	// StatusValid is set on every live job.
	StatusValid Status = 1 << iota
	// StatusRunning is set while background work remains.
	StatusRunning
)

// Has reports whether every flag of f is set.
func (s Status) Has(f Status) bool { return s&f == f }

func (s Status) IsValid() bool   { return s.Has(StatusValid) }
func (s Status) IsRunning() bool { return s.Has(StatusRunning) }

func (s Status) String() string {
	var flags []string
	if s.IsValid() {
		flags = append(flags, "VALID")
	}
	if s.IsRunning() {
		flags = append(flags, "RUNNING")
	}
	return "{" + strings.Join(flags, ",") + "}"
}
