// ABOUTME: Deep link construction and parsing for log entries
// ABOUTME: Accepts either a full <base>/?entry=<id> URL or a bare id

package links

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// EntryParam is the query parameter naming the linked entry.
const EntryParam = "entry"

// ErrInvalidRef is returned when a reference is neither an id nor an entry link.
var ErrInvalidRef = errors.New("invalid entry reference")

// EntryURL returns the deep link for id under base.
func EntryURL(base string, id uint64) string {
	return strings.TrimRight(base, "/") + "/?" + EntryParam + "=" + strconv.FormatUint(id, 10)
}

// ParseEntryRef extracts an entry id from a deep link or a bare decimal id.
func ParseEntryRef(ref string) (uint64, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidRef)
	}

	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return id, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}
	raw := u.Query().Get(EntryParam)
	if raw == "" {
		return 0, fmt.Errorf("%w: %q has no %s parameter", ErrInvalidRef, ref, EntryParam)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: entry %q is not an id", ErrInvalidRef, raw)
	}
	return id, nil
}
