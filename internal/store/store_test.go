package store

import "testing"

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetMissingKey(t *testing.T) {
	s := openTest(t)
	var v []string
	ok, err := s.GetJSON("nope", &v)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for missing key")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTest(t)
	in := map[string]int64{"7": 1850000000}
	if err := s.PutJSON(KeySideTable, in); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out map[string]int64
	ok, err := s.GetJSON(KeySideTable, &out)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if out["7"] != 1850000000 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestPutReplacesWholeValue(t *testing.T) {
	s := openTest(t)
	if err := s.PutJSON(KeyCatalog, []string{"a", "b"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutJSON(KeyCatalog, []string{"c"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out []string
	if ok, err := s.GetJSON(KeyCatalog, &out); err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if len(out) != 1 || out[0] != "c" {
		t.Fatalf("expected whole-value replace, got %v", out)
	}
}

func TestDeleteMissingIsNoop(t *testing.T) {
	s := openTest(t)
	if err := s.Delete("never-written"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.PutJSON("k", 42); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	s2, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	var v int
	if ok, err := s2.GetJSON("k", &v); err != nil || !ok || v != 42 {
		t.Fatalf("expected persisted 42, got ok=%v v=%d err=%v", ok, v, err)
	}
}
