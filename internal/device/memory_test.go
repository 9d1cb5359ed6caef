package device

import "testing"

func TestHardwareOverride(t *testing.T) {
	h := NewHardware(8)
	total, err := h.TotalMemoryGB()
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 8 {
		t.Fatalf("expected override 8, got %v", total)
	}
}

func TestStaticRefresh(t *testing.T) {
	s := Static{Total: 16, Available: 10}
	m, err := s.Refresh()
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if m.TotalGB != 16 || m.AvailableGB != 10 || m.UsedGB != 6 {
		t.Fatalf("unexpected snapshot: %+v", m)
	}
}

func TestStaticRefreshDefaultsAvailability(t *testing.T) {
	s := Static{Total: 8}
	m, err := s.Refresh()
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if m.AvailableGB != 8 || m.UsedGB != 0 {
		t.Fatalf("unexpected snapshot: %+v", m)
	}
}
