package checkpoints

import (
	"errors"
	"testing"
)

func TestResolveExplicitWinsOverFlags(t *testing.T) {
	sel := ExplicitCheckpoint{Path: "runs/exp1/checkpoints/epoch_42.json"}

	for _, tc := range []struct {
		useEMA  bool
		useLast bool
	}{
		{false, false},
		{false, true},
		{true, false},
		{true, true},
	} {
		path, err := Resolve(sel, tc.useEMA, tc.useLast)
		if err != nil {
			t.Fatalf("Resolve(ema=%v, last=%v) failed: %v", tc.useEMA, tc.useLast, err)
		}
		if path != sel.Path {
			t.Errorf("Resolve(ema=%v, last=%v): expected %q, got %q", tc.useEMA, tc.useLast, sel.Path, path)
		}
	}
}

func TestResolvePlain(t *testing.T) {
	sel := PlainCheckpoint{Last: "last.json", Best: "best.json"}

	path, err := Resolve(sel, false, true)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if path != "last.json" {
		t.Errorf("Expected last.json, got %q", path)
	}

	path, err = Resolve(sel, false, false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if path != "best.json" {
		t.Errorf("Expected best.json, got %q", path)
	}
}

func TestResolvePlainRejectsEMA(t *testing.T) {
	sel := PlainCheckpoint{Last: "last.json", Best: "best.json"}
	_, err := Resolve(sel, true, true)
	if !errors.Is(err, ErrNotEMAAware) {
		t.Fatalf("Expected ErrNotEMAAware, got %v", err)
	}
}

func TestResolveEMA(t *testing.T) {
	sel := EMACheckpoint{
		Last:    "last.json",
		Best:    "best.json",
		LastEMA: "last_ema.json",
		BestEMA: "best_ema.json",
	}

	cases := []struct {
		useEMA  bool
		useLast bool
		want    string
	}{
		{true, true, "last_ema.json"},
		{true, false, "best_ema.json"},
		{false, true, "last.json"},
		{false, false, "best.json"},
	}
	for _, tc := range cases {
		path, err := Resolve(sel, tc.useEMA, tc.useLast)
		if err != nil {
			t.Fatalf("Resolve(ema=%v, last=%v) failed: %v", tc.useEMA, tc.useLast, err)
		}
		if path != tc.want {
			t.Errorf("Resolve(ema=%v, last=%v): expected %q, got %q", tc.useEMA, tc.useLast, tc.want, path)
		}
	}
}

func TestResolveEmptyPath(t *testing.T) {
	if _, err := Resolve(PlainCheckpoint{}, false, true); err == nil {
		t.Fatal("Expected error for empty resolved path")
	}
}

func TestResolveNilSelector(t *testing.T) {
	if _, err := Resolve(nil, false, true); err == nil {
		t.Fatal("Expected error for nil selector")
	}
}
