// Package matrix describes compatibility matrices: the combinations of
// project labels exercised together and the outcome expected from each.
package matrix

import (
	"regexp"
	"slices"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// Outcome is the expected result of a compatibility case.
type Outcome int

const (
	Pass Outcome = iota
	Fail
)

func (o Outcome) String() string {
	if o == Fail {
		return "fail"
	}
	return "pass"
}

// Case is one combination of labels and its expected outcome.
//
// Quirk documents a known upstream behaviour contradicting Expect, such as a
// combination that should fail but does not. Tests assert Effective, never
// Expect, so the quirk stays visible instead of being silently fixed.
type Case struct {
	Labels []string
	Expect Outcome
	Quirk  string
}

// Effective returns the outcome tests must assert.
func (c Case) Effective() Outcome {
	if c.Quirk == "" {
		return c.Expect
	}
	if c.Expect == Pass {
		return Fail
	}
	return Pass
}

// Name identifies the case in test names.
func (c Case) Name() string { return strings.Join(c.Labels, "+") }

// Selected reports whether one of the labels of c is in only. An empty only
// selects everything.
func (c Case) Selected(only map[string]bool) bool {
	if len(only) == 0 {
		return true
	}
	return slices.ContainsFunc(c.Labels, func(l string) bool { return only[l] })
}

// Filter keeps the cases selected by only and drops those using a label of
// skip.
func Filter(cases []Case, only, skip map[string]bool) []Case {
	var out []Case
	for _, c := range cases {
		if !c.Selected(only) {
			continue
		}
		if slices.ContainsFunc(c.Labels, func(l string) bool { return skip[l] }) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Axes maps an axis name, such as "tools" or "ust", to the labels it ranges
// over.
type Axes map[string][]string

// Combinations returns the cartesian product of the axes. Axis names are
// sorted alphabetically and each combination lists one label per axis in
// that order.
func (a Axes) Combinations() [][]string {
	if len(a) == 0 {
		return nil
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := [][]string{{}}
	for _, k := range keys {
		next := make([][]string, 0, len(result)*len(a[k]))
		for _, prev := range result {
			for _, v := range a[k] {
				next = append(next, append(slices.Clone(prev), v))
			}
		}
		result = next
	}
	return result
}

// Count returns the number of combinations.
func (a Axes) Count() int {
	if len(a) == 0 {
		return 0
	}
	n := 1
	for _, v := range a {
		n *= len(v)
	}
	return n
}

// Cases builds one case per combination of a. expect decides the outcome of
// each combination; quirks, keyed by case name, document known deviations.
func (a Axes) Cases(expect func(labels []string) Outcome, quirks map[string]string) []Case {
	var cases []Case
	for _, labels := range a.Combinations() {
		c := Case{Labels: labels, Expect: expect(labels)}
		c.Quirk = quirks[c.Name()]
		cases = append(cases, c)
	}
	return cases
}

var versionRE = regexp.MustCompile(`-(\d+(?:\.\d+){0,2})(?:[-.].*)?$`)

// Version extracts the semantic version ending a label such as
// "lttng-tools-2.10", or "" when there is none.
func Version(label string) string {
	m := versionRE.FindStringSubmatch(label)
	if m == nil {
		return ""
	}
	if v := "v" + m[1]; semver.IsValid(v) {
		return v
	}
	return ""
}

// SortLabels orders labels by name, then by version, unversioned labels
// last.
func SortLabels(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		ni, nj := name(labels[i]), name(labels[j])
		if ni != nj {
			return ni < nj
		}
		vi, vj := Version(labels[i]), Version(labels[j])
		switch {
		case vi == "" && vj == "":
			return labels[i] < labels[j]
		case vi == "":
			return false
		case vj == "":
			return true
		}
		if c := semver.Compare(vi, vj); c != 0 {
			return c < 0
		}
		return labels[i] < labels[j]
	})
}

func name(label string) string {
	if loc := versionRE.FindStringIndex(label); loc != nil {
		return label[:loc[0]]
	}
	return label
}
