package matrix

import (
	"reflect"
	"testing"
)

func TestAxesCombinations(t *testing.T) {
	tests := []struct {
		name string
		axes Axes
		want [][]string
	}{
		{
			name: "two axes",
			axes: Axes{
				"ust":   {"lttng-ust-2.9", "lttng-ust-2.10"},
				"tools": {"lttng-tools-2.10"},
			},
			want: [][]string{
				{"lttng-tools-2.10", "lttng-ust-2.9"},
				{"lttng-tools-2.10", "lttng-ust-2.10"},
			},
		},
		{
			name: "empty",
			axes: Axes{},
			want: nil,
		},
		{
			name: "empty axis",
			axes: Axes{"ust": {"a"}, "tools": nil},
			want: [][]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.axes.Combinations()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Combinations() = %v, want %v", got, tt.want)
			}
			if len(got) != tt.axes.Count() {
				t.Errorf("Count() = %d, len(Combinations()) = %d", tt.axes.Count(), len(got))
			}
		})
	}
}

func TestCases(t *testing.T) {
	axes := Axes{
		"tools": {"lttng-tools-2.9", "lttng-tools-2.10"},
		"ust":   {"lttng-ust-2.10"},
	}
	cases := axes.Cases(func(labels []string) Outcome {
		if labels[0] == "lttng-tools-2.9" {
			return Fail
		}
		return Pass
	}, map[string]string{
		"lttng-tools-2.9+lttng-ust-2.10": "registration is accepted, should be refused",
	})
	if len(cases) != 2 {
		t.Fatalf("len(cases) = %d", len(cases))
	}
	old, current := cases[0], cases[1]
	if old.Expect != Fail || old.Effective() != Pass || old.Quirk == "" {
		t.Errorf("quirked case = %+v, effective %v", old, old.Effective())
	}
	if current.Expect != Pass || current.Effective() != Pass {
		t.Errorf("case = %+v", current)
	}
	if (Case{Expect: Pass, Quirk: "crashes"}).Effective() != Fail {
		t.Error("quirk on a passing case not flipped")
	}
}

func TestFilter(t *testing.T) {
	cases := []Case{
		{Labels: []string{"lttng-tools-2.10", "lttng-ust-2.7"}},
		{Labels: []string{"lttng-tools-2.10", "lttng-ust-2.10"}},
		{Labels: []string{"lttng-tools-2.9", "lttng-ust-2.9"}},
	}
	if got := Filter(cases, nil, nil); len(got) != 3 {
		t.Errorf("Filter(nil) kept %d cases", len(got))
	}
	got := Filter(cases, map[string]bool{"lttng-tools-2.10": true}, map[string]bool{"lttng-ust-2.7": true})
	if len(got) != 1 || got[0].Name() != "lttng-tools-2.10+lttng-ust-2.10" {
		t.Errorf("Filter() = %v", got)
	}
}

func TestSortLabels(t *testing.T) {
	labels := []string{"lttng-ust-2.10", "lttng-tools-2.9", "lttng-ust-master", "lttng-ust-2.9", "lttng-ust-2.10.1", "babeltrace-1.5"}
	SortLabels(labels)
	want := []string{"babeltrace-1.5", "lttng-tools-2.9", "lttng-ust-2.9", "lttng-ust-2.10", "lttng-ust-2.10.1", "lttng-ust-master"}
	if !reflect.DeepEqual(labels, want) {
		t.Errorf("SortLabels() = %v, want %v", labels, want)
	}
	if v := Version("lttng-modules-2.10"); v != "v2.10" {
		t.Errorf("Version() = %q", v)
	}
}
