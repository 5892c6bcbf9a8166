// ABOUTME: Sorted views of log entries by id, timestamp or level
// ABOUTME: Returns a sorted copy; ties are broken by id so output is deterministic

package view

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/2389/auditlog-gateway/internal/logstore"
)

// SortKey selects the column entries are ordered by.
type SortKey string

const (
	SortByID    SortKey = "id"
	SortByDate  SortKey = "date"
	SortByLevel SortKey = "level"
)

// Direction is ascending or descending.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseSort reads sort and dir query values. Empty values select the
// default of id descending.
func ParseSort(key, dir string) (SortKey, Direction, error) {
	k := SortKey(strings.ToLower(key))
	switch k {
	case "":
		k = SortByID
	case SortByID, SortByDate, SortByLevel:
	default:
		return "", "", fmt.Errorf("unknown sort key %q (want id, date or level)", key)
	}

	d := Direction(strings.ToLower(dir))
	switch d {
	case "":
		d = Desc
	case Asc, Desc:
	default:
		return "", "", fmt.Errorf("unknown sort direction %q (want asc or desc)", dir)
	}
	return k, d, nil
}

// Sort returns a copy of entries ordered by key in direction dir.
func Sort(entries []logstore.Entry, key SortKey, dir Direction) []logstore.Entry {
	out := slices.Clone(entries)
	if out == nil {
		out = []logstore.Entry{}
	}

	less := func(a, b logstore.Entry) int {
		var c int
		switch key {
		case SortByDate:
			c = cmp.Compare(a.Timestamp, b.Timestamp)
		case SortByLevel:
			c = cmp.Compare(a.Level, b.Level)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if dir == Desc {
			c = -c
		}
		return c
	}
	slices.SortStableFunc(out, less)
	return out
}
