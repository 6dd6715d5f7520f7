package fuzzy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultScaleRoundTrip(t *testing.T) {
	scale := DefaultScale()
	for _, term := range scale.Terms() {
		v, err := scale.ValueOf(term.Label)
		if err != nil {
			t.Fatalf("value of %s: %v", term.Label, err)
		}
		if got := scale.TermOf(v); got != term {
			t.Fatalf("round trip mismatch: got=%+v want=%+v", got, term)
		}
	}
}

func TestValueOfUnknownTerm(t *testing.T) {
	_, err := DefaultScale().ValueOf("Huge")
	if !errors.Is(err, ErrUnknownTerm) {
		t.Fatalf("expected ErrUnknownTerm, got %v", err)
	}
}

func TestTermOfNearestAndTies(t *testing.T) {
	scale, err := NewScale([]Term{{"Low", 0.2}, {"Medium", 0.5}, {"High", 0.8}})
	if err != nil {
		t.Fatalf("new scale: %v", err)
	}
	cases := []struct {
		value float64
		want  string
	}{
		{0.0, "Low"},
		{0.34, "Low"},
		{0.35, "Low"},
		{0.36, "Medium"},
		{0.7, "High"},
		{1.0, "High"},
	}
	for _, tc := range cases {
		if got := scale.TermOf(tc.value).Label; got != tc.want {
			t.Fatalf("term of %v: got=%s want=%s", tc.value, got, tc.want)
		}
	}
}

func TestNewScaleRejectsInvalidDefinitions(t *testing.T) {
	cases := map[string][]Term{
		"empty":         nil,
		"not ordered":   {{"A", 0.5}, {"B", 0.4}},
		"duplicate val": {{"A", 0.5}, {"B", 0.5}},
		"duplicate lbl": {{"A", 0.1}, {"A", 0.5}},
		"out of range":  {{"A", 0.1}, {"B", 1.5}},
		"blank label":   {{" ", 0.1}},
	}
	for name, terms := range cases {
		if _, err := NewScale(terms); !errors.Is(err, ErrInvalidScale) {
			t.Fatalf("%s: expected ErrInvalidScale, got %v", name, err)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	scale := DefaultScale()
	values, err := scale.Encode([]string{"L", "M", "VH"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if values[0] != 0.3 || values[1] != 0.5 || values[2] != 0.8 {
		t.Fatalf("unexpected encoded values: %v", values)
	}
	labels := scale.Decode([]float64{0.31, 0.52, 0.9})
	if labels[0] != "L" || labels[1] != "M" || labels[2] != "VVH" {
		t.Fatalf("unexpected decoded labels: %v", labels)
	}
	if _, err := scale.Encode([]string{"L", "??"}); !errors.Is(err, ErrUnknownTerm) {
		t.Fatalf("expected unknown term on encode, got %v", err)
	}
}

func TestMutationValuesSkipLowest(t *testing.T) {
	scale := DefaultScale()
	values := scale.MutationValues()
	if len(values) != scale.Len()-1 {
		t.Fatalf("unexpected mutation value count: %d", len(values))
	}
	if values[0] != 0.1 || values[len(values)-1] != scale.Max() {
		t.Fatalf("unexpected mutation values: %v", values)
	}
	values[0] = 42
	if scale.MutationValues()[0] == 42 {
		t.Fatal("expected mutation values to be a copy")
	}
}

func TestLoadScale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scale.yaml")
	body := "- label: Low\n  value: 0.25\n- label: Medium\n  value: 0.5\n- label: High\n  value: 0.75\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write scale: %v", err)
	}
	scale, err := LoadScale(path)
	if err != nil {
		t.Fatalf("load scale: %v", err)
	}
	if scale.Len() != 3 || scale.Max() != 0.75 || scale.Values()[0] != 0.25 {
		t.Fatalf("unexpected loaded scale: %+v", scale.Terms())
	}
}
