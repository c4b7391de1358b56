// Package id mints and parses the engine's identifiers.
//
// A run id is "run_" plus a ULID. The ULID keeps ids lexicographically
// sortable by creation time, so run listings sort by id alone, and the
// prefix keeps ids recognizable in logs and API payloads.
package id

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunID identifies one execution of a plan.
type RunID string

func (id RunID) String() string { return string(id) }

// RunPrefix tags run ids.
const RunPrefix = "run"

// NewRunID mints a run id. Safe for concurrent use.
func NewRunID() RunID {
	return RunID(RunPrefix + "_" + ulid.Make().String())
}

// Parse extracts the ULID from an id, tolerating a type prefix.
func Parse(s string) (ulid.ULID, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	return ulid.Parse(s)
}

// IsValid reports whether s is a prefixed or bare ULID.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Timestamp recovers the creation time embedded in an id.
func Timestamp(s string) (time.Time, error) {
	u, err := Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
