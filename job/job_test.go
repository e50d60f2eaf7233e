package job

import "testing"

func TestNormalize_DefaultsPrintBackgroundToTrue(t *testing.T) {
	o := Options{}
	o.Normalize()

	if !o.PrintsBackground() {
		t.Fatalf("PrintsBackground: got false, want true after Normalize on an omitted value")
	}
	if o.PrintBackground == nil || !*o.PrintBackground {
		t.Fatalf("PrintBackground: got %v, want pointer to true", o.PrintBackground)
	}
}

func TestNormalize_PreservesExplicitFalse(t *testing.T) {
	f := false
	o := Options{PrintBackground: &f}
	o.Normalize()

	if o.PrintsBackground() {
		t.Fatalf("PrintsBackground: got true, want false to survive an explicit caller override")
	}
}

func TestNormalize_DefaultsCopiesAndPageSize(t *testing.T) {
	o := Options{}
	o.Normalize()

	if o.Copies != 1 {
		t.Fatalf("Copies: got %d, want 1", o.Copies)
	}
	if o.PageSize != "A4" {
		t.Fatalf("PageSize: got %q, want A4", o.PageSize)
	}
}

func TestPrintsBackground_TrueBeforeNormalizeWhenUnset(t *testing.T) {
	o := Options{}
	if !o.PrintsBackground() {
		t.Fatalf("PrintsBackground: got false, want true even before Normalize runs")
	}
}
