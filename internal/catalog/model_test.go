package catalog

import "testing"

func TestCompareCodes(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"1.2", "1.10", -1},
		{"1.10", "1.2", 1},
		{"1.1.2", "1.1.2", 0},
		{"1.1", "1.1.1", -1},
		{"2.3.01", "2.3.1", 0},
	}
	for _, tc := range cases {
		if got := CompareCodes(tc.a, tc.b); got != tc.want {
			t.Errorf("CompareCodes(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestParentCode(t *testing.T) {
	if got := ParentCode("1.1.2.03"); got != "1.1.2" {
		t.Fatalf("unexpected parent: %q", got)
	}
	if got := ParentCode("1"); got != "" {
		t.Fatalf("root should have empty parent, got %q", got)
	}
}

func TestHasPrefixSegmentBoundaries(t *testing.T) {
	if !HasPrefix("1.1.2", "1.1") {
		t.Fatal("1.1.2 should fall under 1.1")
	}
	if HasPrefix("1.10", "1.1") {
		t.Fatal("1.10 must not fall under 1.1")
	}
	if !HasPrefix("1.1", "1.1") {
		t.Fatal("a code falls under itself")
	}
	if !HasPrefix("2.3", "") {
		t.Fatal("empty prefix covers everything")
	}
}

func TestSnapshotRejectsDuplicateCodes(t *testing.T) {
	_, err := NewSnapshot([]Account{
		{ID: 1, Code: "1.1", Name: "Caixa"},
		{ID: 2, Code: "1.1", Name: "Caixa duplicada"},
	})
	if err == nil {
		t.Fatal("expected duplicate code error")
	}
}

func TestSnapshotLookupsAndOrdering(t *testing.T) {
	snap, err := NewSnapshot([]Account{
		{ID: 3, Code: "1.10", Name: "Estoques"},
		{ID: 1, Code: "1.1", Name: "Caixa"},
		{ID: 2, Code: "1.2", Name: "Bancos"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	accounts := snap.Accounts()
	if accounts[0].Code != "1.1" || accounts[1].Code != "1.2" || accounts[2].Code != "1.10" {
		t.Fatalf("unexpected order: %v", accounts)
	}
	if acc, ok := snap.ByCode("1.2"); !ok || acc.ID != 2 {
		t.Fatalf("ByCode failed: %v %v", acc, ok)
	}
	if acc, ok := snap.ByID(3); !ok || acc.Code != "1.10" {
		t.Fatalf("ByID failed: %v %v", acc, ok)
	}
}
