package filter

// ApplyAssociation merges nested composites that share their parent's operator
// and unwraps single-child composites:
//
//	and(a, and(b, c))  -> and(a, b, c)
//	or(a)              -> a
//	and(a, or(b, c))   -> and(a, or(b, c))
func ApplyAssociation(f Filter) Filter {
	cf, ok := f.AsCompositeFilter()
	if !ok {
		return f
	}
	if len(cf.filters) == 1 {
		return ApplyAssociation(cf.filters[0])
	}

	children := make([]Filter, 0, len(cf.filters))
	for _, child := range cf.filters {
		child = ApplyAssociation(child)
		if nested, ok := child.AsCompositeFilter(); ok && nested.op == cf.op {
			children = append(children, nested.filters...)
			continue
		}
		children = append(children, child)
	}
	if len(children) == 1 {
		return children[0]
	}
	out, _ := NewCompositeFilter(cf.op, children)
	return out
}

// IsDisjunctiveNormalForm reports whether f is a field filter, a flat
// conjunction, or a disjunction whose children are field filters or flat conjunctions.
func IsDisjunctiveNormalForm(f Filter) bool {
	if f.IsFieldFilter() {
		return true
	}
	cf, ok := f.AsCompositeFilter()
	if !ok {
		return false
	}
	if cf.IsFlatConjunction() {
		return true
	}
	if !cf.IsDisjunction() {
		return false
	}
	for _, child := range cf.filters {
		if child.IsFieldFilter() {
			continue
		}
		nested, ok := child.AsCompositeFilter()
		if !ok || !nested.IsFlatConjunction() {
			return false
		}
	}
	return true
}

// ComputeDNF rewrites f into disjunctive normal form by distributing
// conjunctions over disjunctions:
//
//	and(a, or(b, c)) -> or(and(a, b), and(a, c))
//
// The number of terms can grow exponentially with the input.
func ComputeDNF(f Filter) Filter {
	cf, ok := f.AsCompositeFilter()
	if !ok {
		return f
	}
	if len(cf.filters) == 0 {
		return f
	}
	if len(cf.filters) == 1 {
		return ComputeDNF(cf.filters[0])
	}

	children := make([]Filter, len(cf.filters))
	for i, child := range cf.filters {
		children[i] = ComputeDNF(child)
	}
	rebuilt, _ := NewCompositeFilter(cf.op, children)
	rebuilt = ApplyAssociation(rebuilt)
	if IsDisjunctiveNormalForm(rebuilt) {
		return rebuilt
	}

	// Only a conjunction with at least one disjunctive child gets here.
	rc, _ := rebuilt.AsCompositeFilter()
	result := rc.filters[0]
	for _, next := range rc.filters[1:] {
		result = applyDistribution(result, next)
	}
	return ApplyAssociation(result)
}

// applyDistribution computes and(lhs, rhs) pushed below any disjunction.
func applyDistribution(lhs, rhs Filter) Filter {
	lc, lComposite := lhs.AsCompositeFilter()
	rc, rComposite := rhs.AsCompositeFilter()

	switch {
	case !lComposite && !rComposite:
		return And(lhs, rhs)
	case lComposite && !rComposite:
		return distributeFieldOverComposite(rhs, lc)
	case !lComposite && rComposite:
		return distributeFieldOverComposite(lhs, rc)
	}

	if lc.IsConjunction() && rc.IsConjunction() {
		return lc.WithAddedFilters(rc.filters...)
	}

	// At least one side is a disjunction: distribute the other side over its terms.
	disj, other := lc, rhs
	if !lc.IsDisjunction() {
		disj, other = rc, lhs
	}
	terms := make([]Filter, 0, len(disj.filters))
	for _, term := range disj.filters {
		terms = append(terms, applyDistribution(term, other))
	}
	return Or(terms...)
}

func distributeFieldOverComposite(field Filter, cf *CompositeFilter) Filter {
	if cf.IsConjunction() {
		return cf.WithAddedFilters(field)
	}
	terms := make([]Filter, 0, len(cf.filters))
	for _, term := range cf.filters {
		terms = append(terms, applyDistribution(field, term))
	}
	return Or(terms...)
}

// DNFTerms returns the conjunctive terms of f's disjunctive normal form.
// Each term is a field filter or a flat conjunction. The empty filter has no terms.
func DNFTerms(f Filter) []Filter {
	if f.IsEmpty() {
		return nil
	}
	dnf := ComputeDNF(f)
	if dnf.IsFieldFilter() {
		return []Filter{dnf}
	}
	cf, _ := dnf.AsCompositeFilter()
	if cf.IsFlatConjunction() {
		return []Filter{dnf}
	}
	return cf.Filters()
}

// CountDNFTerms returns the number of terms DNFTerms(ComputeInExpansion(f))
// would produce, without building them: a conjunction multiplies the counts of
// its children, a disjunction adds them, and an "in" leaf counts its elements.
// The count saturates at limit+1, so limit must be positive.
func CountDNFTerms(f Filter, limit int) int {
	if f.IsEmpty() {
		return 0
	}
	return countTerms(f, limit)
}

func countTerms(f Filter, limit int) int {
	saturate := func(n int) int { return min(n, limit+1) }
	switch n := f.rep.(type) {
	case *FieldFilter:
		if n.op == OpIn {
			return saturate(len(n.value.arr))
		}
		return 1
	case *CompositeFilter:
		if n.op == CompositeAnd {
			total := 1
			for _, child := range n.filters {
				total = saturate(total * countTerms(child, limit))
			}
			return total
		}
		total := 0
		for _, child := range n.filters {
			total = saturate(total + countTerms(child, limit))
		}
		return total
	default:
		return 0
	}
}

// ComputeInExpansion replaces every "in" leaf with an or of equality leaves.
func ComputeInExpansion(f Filter) Filter {
	switch n := f.rep.(type) {
	case *FieldFilter:
		if n.op != OpIn {
			return f
		}
		terms := make([]Filter, 0, len(n.value.arr))
		for _, v := range n.value.arr {
			terms = append(terms, Filter{rep: &FieldFilter{path: n.path, op: OpEqual, value: v}})
		}
		return Or(terms...)
	case *CompositeFilter:
		children := make([]Filter, len(n.filters))
		for i, child := range n.filters {
			children[i] = ComputeInExpansion(child)
		}
		out, _ := NewCompositeFilter(n.op, children)
		return out
	default:
		return f
	}
}
