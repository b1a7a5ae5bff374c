package main

import (
	"testing"
)

func TestDecodeAxesSortedByName(t *testing.T) {
	raw := `{"osc_period":[7,14],"oversold":[25,30],"overbought":[70,75],"tp_pct":[0.02,0.03],"sl_pct":[0.01],"leverage":[1,2]}`

	first, err := decodeAxes(raw)
	if err != nil {
		t.Fatalf("decodeAxes() error = %v", err)
	}
	want := []string{"leverage", "osc_period", "overbought", "oversold", "sl_pct", "tp_pct"}
	if len(first) != len(want) {
		t.Fatalf("decoded %d axes, want %d", len(first), len(want))
	}
	for i, axis := range first {
		if axis.Name != want[i] {
			t.Fatalf("axis[%d] = %q, want %q", i, axis.Name, want[i])
		}
	}

	// Map iteration order varies between decodes; the sorted output must not.
	for run := 0; run < 50; run++ {
		axes, err := decodeAxes(raw)
		if err != nil {
			t.Fatalf("decodeAxes() error = %v", err)
		}
		for i := range axes {
			if axes[i].Name != first[i].Name {
				t.Fatalf("run %d: axis[%d] = %q, want %q", run, i, axes[i].Name, first[i].Name)
			}
		}
	}
}

func TestDecodeAxesKeepsValueOrder(t *testing.T) {
	axes, err := decodeAxes(`{"osc_period":[21,7,14]}`)
	if err != nil {
		t.Fatalf("decodeAxes() error = %v", err)
	}
	if len(axes) != 1 || len(axes[0].Values) != 3 {
		t.Fatalf("unexpected axes: %+v", axes)
	}
	for i, want := range []float64{21, 7, 14} {
		if axes[0].Values[i] != want {
			t.Fatalf("values[%d] = %v, want %v", i, axes[0].Values[i], want)
		}
	}
}

func TestDecodeAxesInvalidJSON(t *testing.T) {
	if _, err := decodeAxes(`{"osc_period":`); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
