package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hugr-lab/docquery/filter"
)

// SegmentKind is how a field is stored in an index segment.
type SegmentKind int

const (
	SegmentAscending SegmentKind = iota
	SegmentDescending
	SegmentContains
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentDescending:
		return "desc"
	case SegmentContains:
		return "contains"
	default:
		return "asc"
	}
}

// ParseSegmentKind parses "asc", "desc" or "contains".
func ParseSegmentKind(s string) (SegmentKind, error) {
	switch strings.ToLower(s) {
	case "", "asc", "ascending":
		return SegmentAscending, nil
	case "desc", "descending":
		return SegmentDescending, nil
	case "contains", "array-contains":
		return SegmentContains, nil
	}
	return SegmentAscending, fmt.Errorf("query: unknown index segment kind %q", s)
}

// Segment is one indexed field.
type Segment struct {
	Field filter.FieldPath
	Kind  SegmentKind
}

func (s Segment) String() string { return s.Field.String() + " " + s.Kind.String() }

// FieldIndex is a composite index over a collection.
type FieldIndex struct {
	Collection string
	Segments   []Segment
}

// ErrInvalidIndex is returned for malformed index definitions.
var ErrInvalidIndex = errors.New("query: invalid index")

// Validate checks the index has a collection, at least one segment and at most one contains segment.
func (idx FieldIndex) Validate() error {
	if idx.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidIndex)
	}
	if len(idx.Segments) == 0 {
		return fmt.Errorf("%w: at least one segment is required", ErrInvalidIndex)
	}
	contains := 0
	for _, s := range idx.Segments {
		if s.Field.IsEmpty() {
			return fmt.Errorf("%w: segment with empty field", ErrInvalidIndex)
		}
		if s.Kind == SegmentContains {
			contains++
		}
	}
	if contains > 1 {
		return fmt.Errorf("%w: at most one contains segment is allowed", ErrInvalidIndex)
	}
	return nil
}

// ArraySegment returns the contains segment, if any.
func (idx FieldIndex) ArraySegment() (Segment, bool) {
	for _, s := range idx.Segments {
		if s.Kind == SegmentContains {
			return s, true
		}
	}
	return Segment{}, false
}

// DirectionalSegments returns the ascending and descending segments in order.
func (idx FieldIndex) DirectionalSegments() []Segment {
	out := make([]Segment, 0, len(idx.Segments))
	for _, s := range idx.Segments {
		if s.Kind != SegmentContains {
			out = append(out, s)
		}
	}
	return out
}

// Equal reports whether two indexes have the same collection and segments.
func (idx FieldIndex) Equal(other FieldIndex) bool {
	if idx.Collection != other.Collection || len(idx.Segments) != len(other.Segments) {
		return false
	}
	for i := range idx.Segments {
		if idx.Segments[i].Kind != other.Segments[i].Kind || !idx.Segments[i].Field.Equal(other.Segments[i].Field) {
			return false
		}
	}
	return true
}

// String renders "collection(a asc, tags contains)".
func (idx FieldIndex) String() string {
	parts := make([]string, len(idx.Segments))
	for i, s := range idx.Segments {
		parts[i] = s.String()
	}
	return idx.Collection + "(" + strings.Join(parts, ", ") + ")"
}

// ParseFieldIndex parses the form produced by FieldIndex.String:
//
//	people(city, age desc, tags contains)
//
// A segment without a kind is ascending.
func ParseFieldIndex(s string) (FieldIndex, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return FieldIndex{}, fmt.Errorf("%w: expected collection(segments), got %q", ErrInvalidIndex, s)
	}

	idx := FieldIndex{Collection: strings.TrimSpace(s[:open])}
	for _, part := range strings.Split(s[open+1:len(s)-1], ",") {
		words := strings.Fields(part)
		if len(words) == 0 || len(words) > 2 {
			return FieldIndex{}, fmt.Errorf("%w: malformed segment %q", ErrInvalidIndex, strings.TrimSpace(part))
		}
		field, err := filter.ParseFieldPath(words[0])
		if err != nil {
			return FieldIndex{}, fmt.Errorf("%w: %w", ErrInvalidIndex, err)
		}
		kind := SegmentAscending
		if len(words) == 2 {
			if kind, err = ParseSegmentKind(words[1]); err != nil {
				return FieldIndex{}, fmt.Errorf("%w: %w", ErrInvalidIndex, err)
			}
		}
		idx.Segments = append(idx.Segments, Segment{Field: field, Kind: kind})
	}

	if err := idx.Validate(); err != nil {
		return FieldIndex{}, err
	}
	return idx, nil
}
