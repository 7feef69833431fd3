package filter

import (
	"fmt"
	"testing"
)

var (
	fa = Where("a", OpEqual, 1)
	fb = Where("b", OpEqual, 2)
	fc = Where("c", OpEqual, 3)
	fd = Where("d", OpEqual, 4)
)

func TestApplyAssociation(t *testing.T) {
	tests := []struct {
		name     string
		input    Filter
		expected Filter
	}{
		{"leaf", fa, fa},
		{"single child unwrapped", Or(fa), fa},
		{"nested single child", And(Or(And(fa))), fa},
		{"same operator merged", And(fa, And(fb, fc)), And(fa, fb, fc)},
		{"same operator merged or", Or(Or(fa, fb), fc), Or(fa, fb, fc)},
		{"mixed operators kept", And(fa, Or(fb, fc)), And(fa, Or(fb, fc))},
		{"deep merge", And(fa, And(fb, And(fc, fd))), And(fa, fb, fc, fd)},
		{"single child inside merge", And(fa, Or(And(fb, fc))), And(fa, fb, fc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyAssociation(tt.input)
			if !got.Equal(tt.expected) {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestIsDisjunctiveNormalForm(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		dnf    bool
	}{
		{"leaf", fa, true},
		{"flat conjunction", And(fa, fb), true},
		{"flat disjunction", Or(fa, fb), true},
		{"disjunction of conjunctions", Or(And(fa, fb), fc), true},
		{"conjunction over disjunction", And(fa, Or(fb, fc)), false},
		{"nested disjunction", Or(fa, Or(fb, fc)), false},
		{"empty filter", Filter{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDisjunctiveNormalForm(tt.filter); got != tt.dnf {
				t.Errorf("%s: expected %v, got %v", tt.filter, tt.dnf, got)
			}
		})
	}
}

func TestComputeDNF(t *testing.T) {
	tests := []struct {
		name     string
		input    Filter
		expected Filter
	}{
		{"leaf", fa, fa},
		{"already dnf", Or(And(fa, fb), fc), Or(And(fa, fb), fc)},
		{"distribute leaf", And(fa, Or(fb, fc)), Or(And(fa, fb), And(fa, fc))},
		{
			"distribute two disjunctions",
			And(Or(fa, fb), Or(fc, fd)),
			Or(And(fa, fc), And(fa, fd), And(fb, fc), And(fb, fd)),
		},
		{
			"nested inside disjunction",
			Or(fa, And(fb, Or(fc, fd))),
			Or(fa, And(fb, fc), And(fb, fd)),
		},
		{"conjunction of conjunctions", And(And(fa, fb), And(fc)), And(fa, fb, fc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDNF(tt.input)
			if !got.Equal(tt.expected) {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
			if !IsDisjunctiveNormalForm(got) {
				t.Errorf("result %s is not in DNF", got)
			}
		})
	}
}

func TestDNFPreservesMatches(t *testing.T) {
	f := And(Or(fa, fb), Or(fc, Where("d", OpGreaterThan, 0)))
	dnf := ComputeDNF(f)

	for _, fields := range []map[string]any{
		{"a": 1, "c": 3},
		{"b": 2, "d": 5},
		{"a": 1, "b": 2},
		{"c": 3, "d": 1},
		{},
	} {
		doc, err := NewDocument("x", fields)
		if err != nil {
			t.Fatal(err)
		}
		if f.Matches(doc) != dnf.Matches(doc) {
			t.Errorf("DNF disagrees with original on %v", fields)
		}
	}
}

func TestDNFTerms(t *testing.T) {
	if terms := DNFTerms(Filter{}); terms != nil {
		t.Errorf("expected no terms, got %d", len(terms))
	}
	if terms := DNFTerms(fa); len(terms) != 1 {
		t.Errorf("expected 1 term, got %d", len(terms))
	}
	if terms := DNFTerms(And(fa, fb)); len(terms) != 1 {
		t.Errorf("expected 1 term, got %d", len(terms))
	}
	terms := DNFTerms(And(Or(fa, fb), Or(fc, fd)))
	if len(terms) != 4 {
		t.Fatalf("expected 4 terms, got %d", len(terms))
	}
	for _, term := range terms {
		cf, ok := term.AsCompositeFilter()
		if !ok || !cf.IsFlatConjunction() {
			t.Errorf("term %s is not a flat conjunction", term)
		}
	}
}

func TestCountDNFTerms(t *testing.T) {
	in3 := Where("e", OpIn, []any{1, 2, 3})
	tests := []struct {
		name string
		f    Filter
	}{
		{"empty", Filter{}},
		{"leaf", fa},
		{"conjunction", And(fa, fb)},
		{"disjunction", Or(fa, fb, fc)},
		{"product", And(Or(fa, fb), Or(fc, fd))},
		{"in", in3},
		{"in inside conjunction", And(Or(fa, fb), in3)},
		{"nested", Or(And(fa, Or(fb, fc)), And(Or(fc, fd), Or(fa, in3)))},
		{"empty disjunction", And(fa, Or())},
		{"not-in stays one term", Where("a", OpNotIn, []any{1, 2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := len(DNFTerms(ComputeInExpansion(tt.f)))
			if got := CountDNFTerms(tt.f, 100); got != want {
				t.Errorf("CountDNFTerms(%s) = %d, want %d", tt.f, got, want)
			}
		})
	}
}

func TestCountDNFTermsSaturates(t *testing.T) {
	// 40 two-way disjunctions would expand to 2^40 terms.
	children := make([]Filter, 40)
	for i := range children {
		children[i] = Or(Where(fmt.Sprintf("x%d", i), OpEqual, 1), Where(fmt.Sprintf("y%d", i), OpEqual, 2))
	}
	if got := CountDNFTerms(And(children...), 30); got != 31 {
		t.Errorf("CountDNFTerms() = %d, want 31", got)
	}
	if got := CountDNFTerms(And(children[:4]...), 30); got != 16 {
		t.Errorf("CountDNFTerms() = %d, want 16", got)
	}
}

func TestComputeInExpansion(t *testing.T) {
	in := Where("a", OpIn, []any{1, 2})
	expected := Or(Where("a", OpEqual, 1), Where("a", OpEqual, 2))

	if got := ComputeInExpansion(in); !got.Equal(expected) {
		t.Errorf("expected %s, got %s", expected, got)
	}

	nested := And(fb, in)
	if got := ComputeInExpansion(nested); !got.Equal(And(fb, expected)) {
		t.Errorf("expected and(b == 2, %s), got %s", expected, got)
	}

	notIn := Where("a", OpNotIn, []any{1})
	if got := ComputeInExpansion(notIn); !got.Equal(notIn) {
		t.Errorf("not-in should not be expanded, got %s", got)
	}
}
