package filter

import (
	"fmt"
	"strings"
)

// DocumentKeyField is the reserved field path addressing the document id.
const DocumentKeyField = "__name__"

// FieldPath is a dotted path into a document, e.g. "address.city".
type FieldPath struct {
	segments []string
}

// ParseFieldPath parses a dotted field path.
// Empty paths and empty segments are rejected.
func ParseFieldPath(path string) (FieldPath, error) {
	if path == "" {
		return FieldPath{}, fmt.Errorf("filter: empty field path")
	}
	segments := strings.Split(path, ".")
	for i, s := range segments {
		if s == "" {
			return FieldPath{}, fmt.Errorf("filter: empty segment %d in field path %q", i, path)
		}
	}
	return FieldPath{segments: segments}, nil
}

// MustFieldPath is like ParseFieldPath but panics on invalid input.
func MustFieldPath(path string) FieldPath {
	fp, err := ParseFieldPath(path)
	if err != nil {
		panic(err)
	}
	return fp
}

// Segments returns the path segments. Callers must not modify the slice.
func (p FieldPath) Segments() []string { return p.segments }

// IsEmpty reports whether the path has no segments.
func (p FieldPath) IsEmpty() bool { return len(p.segments) == 0 }

// IsKeyField reports whether the path addresses the document id.
func (p FieldPath) IsKeyField() bool {
	return len(p.segments) == 1 && p.segments[0] == DocumentKeyField
}

// String returns the dotted form of the path.
func (p FieldPath) String() string { return strings.Join(p.segments, ".") }

// Equal reports whether two paths have the same segments.
func (p FieldPath) Equal(other FieldPath) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i := range p.segments {
		if p.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// Document is a stored document: an id and a tree of field values.
type Document struct {
	ID     string
	Fields map[string]Value
}

// NewDocument converts plain Go fields into a Document.
func NewDocument(id string, fields map[string]any) (Document, error) {
	doc := Document{ID: id, Fields: make(map[string]Value, len(fields))}
	for k, v := range fields {
		val, err := ValueOf(v)
		if err != nil {
			return Document{}, fmt.Errorf("document %s: field %q: %w", id, k, err)
		}
		doc.Fields[k] = val
	}
	return doc, nil
}

// Field resolves a field path. The key field resolves to the document id.
// Returns false when any segment is missing or traverses a non-map value.
func (d Document) Field(path FieldPath) (Value, bool) {
	if path.IsKeyField() {
		return String(d.ID), true
	}
	if path.IsEmpty() {
		return Value{}, false
	}
	cur, ok := d.Fields[path.segments[0]]
	if !ok {
		return Value{}, false
	}
	for _, seg := range path.segments[1:] {
		if cur.kind != KindMap {
			return Value{}, false
		}
		cur, ok = cur.m[seg]
		if !ok {
			return Value{}, false
		}
	}
	return cur, true
}
