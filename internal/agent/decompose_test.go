package agent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestSplitUsesOracleParts(t *testing.T) {
	o := &scriptedOracle{replies: []string{"Here you go:\n[\"Total sales per region.\", \"  \", \"Top customers.\", 7, true]"}}
	d := &Decomposer{Oracle: o}

	got := d.Split(context.Background(), "total sales per region and top customers", salesMapping, 5)
	want := []string{"Total sales per region.", "Top customers.", "7"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split() = %#v, want %#v", got, want)
	}
	if !strings.Contains(o.prompts[0], "at most 5") || !strings.Contains(o.prompts[0], `"Sales"`) {
		t.Fatalf("split prompt missing limit or schema:\n%s", o.prompts[0])
	}
}

func TestSplitCapsAtMaxParts(t *testing.T) {
	o := &scriptedOracle{replies: []string{`["a", "b", "c", "d"]`}}
	got := (&Decomposer{Oracle: o}).Split(context.Background(), "x", nil, 2)
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Split() = %#v", got)
	}
}

func TestSplitAcceptsObjectWrappingArray(t *testing.T) {
	o := &scriptedOracle{replies: []string{`{"sub_requests": ["one", "two"]}`}}
	got := (&Decomposer{Oracle: o}).Split(context.Background(), "x", nil, 5)
	if !reflect.DeepEqual(got, []string{"one", "two"}) {
		t.Fatalf("Split() = %#v", got)
	}
}

func TestSplitFallsBackDeterministically(t *testing.T) {
	replies := map[string]*scriptedOracle{
		"unparsable":   {replies: []string{"I think you should split it in three."}},
		"single":       {replies: []string{`["A; B; C"]`}},
		"empty output": {replies: []string{""}},
		"oracle error": {errs: []error{errors.New("quota exceeded")}},
	}
	for name, o := range replies {
		got := (&Decomposer{Oracle: o}).Split(context.Background(), "A; B; C", salesMapping, 5)
		if !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
			t.Fatalf("%s: Split() = %#v", name, got)
		}
	}
}

func TestSplitDeterministicHonoursNewlinesAndCap(t *testing.T) {
	got := (&Decomposer{}).Split(context.Background(), "one\n\n two ;three;four", nil, 3)
	if !reflect.DeepEqual(got, []string{"one", "two", "three"}) {
		t.Fatalf("Split() = %#v", got)
	}
}

func TestSplitNeverReturnsEmpty(t *testing.T) {
	inputs := []string{"", "   ", ";;;", "compare north vs south"}
	for _, input := range inputs {
		o := &scriptedOracle{replies: []string{"[]"}}
		got := (&Decomposer{Oracle: o}).Split(context.Background(), input, nil, 5)
		if len(got) < 1 {
			t.Fatalf("Split(%q) returned no parts", input)
		}
		if len(got) == 1 && got[0] != input {
			t.Fatalf("Split(%q) identity = %#v", input, got)
		}
	}
}
