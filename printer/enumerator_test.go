package printer

import "testing"

func TestDedupe_RemovesDuplicatesAndFillsDisplayName(t *testing.T) {
	in := []Info{
		{Name: "Office-LaserJet"},
		{Name: "Office-LaserJet", DisplayName: "Office LaserJet (dup)"},
		{Name: "", DisplayName: "skip me"},
		{Name: "Lobby-Inkjet", DisplayName: "Lobby Inkjet", IsDefault: true},
	}

	got := dedupe(in)

	if len(got) != 2 {
		t.Fatalf("dedupe: got %d printers, want 2: %+v", len(got), got)
	}
	if got[0].Name != "Lobby-Inkjet" || !got[0].IsDefault {
		t.Fatalf("dedupe: expected Lobby-Inkjet sorted first and marked default, got %+v", got[0])
	}
	if got[1].Name != "Office-LaserJet" || got[1].DisplayName != "Office-LaserJet" {
		t.Fatalf("dedupe: expected first-seen entry with DisplayName filled, got %+v", got[1])
	}
}

func TestDedupe_EmptyInput(t *testing.T) {
	got := dedupe(nil)
	if len(got) != 0 {
		t.Fatalf("dedupe(nil): got %d entries, want 0", len(got))
	}
}

func TestNew_DefaultsNetworkDiscoveryOn(t *testing.T) {
	e := New(nil)
	if !e.EnableNetworkDiscovery {
		t.Fatalf("New: expected EnableNetworkDiscovery true by default")
	}
	if e.logger == nil {
		t.Fatalf("New: expected a non-nil fallback logger")
	}
}
