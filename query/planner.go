package query

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/hugr-lab/docquery/filter"
)

// TermPlan is the access path chosen for one DNF term.
type TermPlan struct {
	// Term is a field filter, a flat conjunction, or empty for an unfiltered query.
	Term filter.Filter
	// Index serves the term; nil means a collection scan.
	Index *FieldIndex
	// Ideal is the index that would serve the term fully.
	Ideal FieldIndex
}

// Plan is the result of planning a query.
type Plan struct {
	Query Query
	Terms []TermPlan
}

// FullScan reports whether any term falls back to a collection scan.
func (p Plan) FullScan() bool {
	for _, t := range p.Terms {
		if t.Index == nil {
			return true
		}
	}
	return false
}

func (p Plan) String() string {
	var sb strings.Builder
	for i, t := range p.Terms {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(t.Term.String())
		sb.WriteString(" -> ")
		if t.Index == nil {
			sb.WriteString("scan (ideal index ")
			sb.WriteString(t.Ideal.String())
			sb.WriteString(")")
			continue
		}
		sb.WriteString(t.Index.String())
	}
	return sb.String()
}

// Planner selects declared indexes for queries. It is safe for concurrent use.
type Planner struct {
	mu      sync.RWMutex
	indexes map[string][]FieldIndex
	logger  *slog.Logger
}

// NewPlanner creates a planner. A nil logger discards plan diagnostics.
func NewPlanner(logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Planner{indexes: make(map[string][]FieldIndex), logger: logger}
}

// AddIndex declares an index. Duplicate declarations are ignored.
func (p *Planner) AddIndex(idx FieldIndex) error {
	if err := idx.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.indexes[idx.Collection] {
		if existing.Equal(idx) {
			return nil
		}
	}
	p.indexes[idx.Collection] = append(p.indexes[idx.Collection], idx)
	return nil
}

// Indexes returns the indexes declared for collection.
func (p *Planner) Indexes(collection string) []FieldIndex {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]FieldIndex, len(p.indexes[collection]))
	copy(out, p.indexes[collection])
	return out
}

// Plan splits the query filter into DNF terms (after "in" expansion) and
// picks, for each term, the declared index with the most segments that serves it.
func (p *Planner) Plan(q Query) Plan {
	terms := filter.DNFTerms(filter.ComputeInExpansion(q.Filter()))
	if len(terms) == 0 {
		terms = []filter.Filter{{}}
	}

	p.mu.RLock()
	candidates := p.indexes[q.Collection()]
	p.mu.RUnlock()

	orderBy := q.NormalizedOrderBy()
	plan := Plan{Query: q, Terms: make([]TermPlan, 0, len(terms))}
	for _, term := range terms {
		m := newIndexMatcher(q.Collection(), term, orderBy)
		tp := TermPlan{Term: term, Ideal: m.buildIndex()}

		for i := range candidates {
			idx := candidates[i]
			if !m.servedBy(idx) {
				continue
			}
			if tp.Index == nil || len(idx.Segments) > len(tp.Index.Segments) {
				tp.Index = &idx
			}
		}
		if tp.Index == nil {
			p.logger.LogAttrs(context.Background(), slog.LevelDebug, "no index serves query term",
				slog.String("collection", q.Collection()),
				slog.String("term", term.String()),
				slog.String("ideal_index", tp.Ideal.String()),
			)
		}
		plan.Terms = append(plan.Terms, tp)
	}
	return plan
}

// IdealIndex returns the index that would fully serve term under q's ordering.
func (p *Planner) IdealIndex(q Query, term filter.Filter) FieldIndex {
	return newIndexMatcher(q.Collection(), term, q.NormalizedOrderBy()).buildIndex()
}

// indexMatcher decides whether an index serves a single DNF term.
type indexMatcher struct {
	collection string
	equality   []filter.FieldFilter
	inequality []filter.FieldFilter
	orderBy    []Order
}

func newIndexMatcher(collection string, term filter.Filter, orderBy []Order) *indexMatcher {
	m := &indexMatcher{collection: collection, orderBy: orderBy}
	for _, ff := range term.FlattenedFilters() {
		if ff.IsInequality() {
			m.inequality = append(m.inequality, ff)
		} else {
			m.equality = append(m.equality, ff)
		}
	}
	return m
}

func (m *indexMatcher) servedBy(idx FieldIndex) bool {
	if idx.Collection != m.collection {
		return false
	}
	if m.multipleInequalityFields() {
		return false
	}

	if seg, ok := idx.ArraySegment(); ok && !m.hasMatchingEquality(seg) {
		return false
	}

	segments := idx.DirectionalSegments()
	seen := make(map[string]bool)
	i := 0

	// Equalities can appear in any order.
	for ; i < len(segments); i++ {
		if !m.hasMatchingEquality(segments[i]) {
			break
		}
		seen[segments[i].Field.String()] = true
	}
	if i == len(segments) {
		return true
	}

	if len(m.inequality) > 0 {
		ineq := m.inequality[0]
		if !seen[ineq.Field().String()] {
			seg := segments[i]
			if !matchesFilter(ineq, seg) || len(m.orderBy) == 0 || !matchesOrder(m.orderBy[0], seg) {
				return false
			}
		}
		i++
	}

	// Remaining segments must be a prefix of the ordering.
	next := 0
	for ; i < len(segments); i++ {
		if next >= len(m.orderBy) || !matchesOrder(m.orderBy[next], segments[i]) {
			return false
		}
		next++
	}
	return true
}

func (m *indexMatcher) multipleInequalityFields() bool {
	for _, ff := range m.inequality[min(1, len(m.inequality)):] {
		if !ff.Field().Equal(m.inequality[0].Field()) {
			return true
		}
	}
	return false
}

func (m *indexMatcher) hasMatchingEquality(seg Segment) bool {
	for _, ff := range m.equality {
		if matchesFilter(ff, seg) {
			return true
		}
	}
	return false
}

// buildIndex returns an index covering the equalities and then the ordering.
// Each field appears in at most one directional segment.
func (m *indexMatcher) buildIndex() FieldIndex {
	idx := FieldIndex{Collection: m.collection}
	unique := make(map[string]bool)

	for _, ff := range m.equality {
		if ff.Field().IsKeyField() {
			continue
		}
		if ff.Op().IsArrayOperator() {
			idx.Segments = append(idx.Segments, Segment{Field: ff.Field(), Kind: SegmentContains})
			continue
		}
		if key := ff.Field().String(); !unique[key] {
			unique[key] = true
			idx.Segments = append(idx.Segments, Segment{Field: ff.Field(), Kind: SegmentAscending})
		}
	}

	for _, o := range m.orderBy {
		if o.Field.IsKeyField() {
			continue
		}
		if key := o.Field.String(); !unique[key] {
			unique[key] = true
			kind := SegmentAscending
			if o.Direction == Descending {
				kind = SegmentDescending
			}
			idx.Segments = append(idx.Segments, Segment{Field: o.Field, Kind: kind})
		}
	}
	return idx
}

func matchesFilter(ff filter.FieldFilter, seg Segment) bool {
	if !ff.Field().Equal(seg.Field) {
		return false
	}
	return (seg.Kind == SegmentContains) == ff.Op().IsArrayOperator()
}

func matchesOrder(o Order, seg Segment) bool {
	if !o.Field.Equal(seg.Field) {
		return false
	}
	return (o.Direction == Ascending && seg.Kind == SegmentAscending) ||
		(o.Direction == Descending && seg.Kind == SegmentDescending)
}
