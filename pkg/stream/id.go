package stream

import (
	"fmt"
	"strconv"
	"strings"
)

// EntryID identifies an entry within a single stream. IDs are totally ordered
// by (Ms, Seq) and are never reassigned once handed out, even after the entry
// they name has been deleted.
type EntryID struct {
	// Ms is the millisecond time component.
	Ms uint64

	// Seq disambiguates entries appended within the same millisecond.
	Seq uint64
}

// String renders the ID in its wire form, "<ms>-<seq>".
func (id EntryID) String() string {
	return strconv.FormatUint(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

// IsZero reports whether the ID is the zero value, which no stream assigns.
func (id EntryID) IsZero() bool {
	return id.Ms == 0 && id.Seq == 0
}

// Compare returns -1, 0 or 1 when id is less than, equal to or greater than other.
func (id EntryID) Compare(other EntryID) int {
	switch {
	case id.Ms < other.Ms:
		return -1
	case id.Ms > other.Ms:
		return 1
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	default:
		return 0
	}
}

// Less reports whether id sorts strictly before other.
func (id EntryID) Less(other EntryID) bool {
	return id.Compare(other) < 0
}

// Next returns the smallest ID strictly greater than id whose time component
// is at least nowMs. A clock that moves backwards keeps the previous time
// component and bumps the sequence.
func (id EntryID) Next(nowMs uint64) EntryID {
	if nowMs > id.Ms {
		return EntryID{Ms: nowMs}
	}
	return EntryID{Ms: id.Ms, Seq: id.Seq + 1}
}

// ParseEntryID parses "<ms>-<seq>". A bare "<ms>" is accepted and means sequence 0.
func ParseEntryID(s string) (EntryID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return EntryID{}, fmt.Errorf("empty entry id")
	}

	msPart, seqPart, hasSeq := strings.Cut(s, "-")

	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return EntryID{}, fmt.Errorf("invalid entry id %q: %w", s, err)
	}

	var seq uint64
	if hasSeq {
		seq, err = strconv.ParseUint(seqPart, 10, 64)
		if err != nil {
			return EntryID{}, fmt.Errorf("invalid entry id %q: %w", s, err)
		}
	}

	return EntryID{Ms: ms, Seq: seq}, nil
}

// MustParseEntryID is ParseEntryID for literals known to be valid.
func MustParseEntryID(s string) EntryID {
	id, err := ParseEntryID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// MaxEntryID returns the greatest of ids, or the zero ID when ids is empty.
func MaxEntryID(ids ...EntryID) EntryID {
	var out EntryID
	for _, id := range ids {
		if out.Less(id) {
			out = id
		}
	}
	return out
}
