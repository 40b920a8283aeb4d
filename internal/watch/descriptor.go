package watch

import (
	"fmt"
	"os"
	"time"
)

// Status describes the outcome of a staleness check.
type Status int

const (
	// Unchanged means the backing file's modification time has not advanced.
	Unchanged Status = iota
	// Reloaded means a newer file was parsed and applied.
	Reloaded
	// Failed means a newer file existed but could not be applied; the last
	// good artifact stays in service.
	Failed
)

func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Reloaded:
		return "reloaded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Descriptor pairs a watched file path with the modification time observed at
// the last successful reload. The stored time only moves forward via Commit,
// so a failed reload leaves the descriptor at the last good state and the
// next check retries.
type Descriptor struct {
	path  string
	mtime time.Time
}

func NewDescriptor(path string) *Descriptor {
	return &Descriptor{path: path}
}

func (d *Descriptor) Path() string { return d.path }

// Check stats the backing file and reports whether its modification time has
// advanced past the last committed one.
func (d *Descriptor) Check() (stale bool, mtime time.Time, err error) {
	info, err := os.Stat(d.path)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("stat %s: %w", d.path, err)
	}
	mtime = info.ModTime()
	return mtime.After(d.mtime), mtime, nil
}

// Commit records the modification time of a successfully applied reload.
func (d *Descriptor) Commit(mtime time.Time) { d.mtime = mtime }
