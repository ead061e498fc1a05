package reports

import (
	"reflect"
	"testing"

	"github.com/razonete/razonete/internal/catalog"
	"github.com/razonete/razonete/internal/ledger"
)

func assetAccounts() []catalog.Account {
	return []catalog.Account{
		{ID: 1, Code: "1", Name: "Ativo", Type: catalog.AccountTypeAsset, Nature: catalog.NatureDebit, Synthetic: true},
		{ID: 2, Code: "1.1", Name: "Ativo Circulante", Type: catalog.AccountTypeAsset, Nature: catalog.NatureDebit, Synthetic: true},
		{ID: 3, Code: "1.1.1", Name: "Caixa", Type: catalog.AccountTypeAsset, Nature: catalog.NatureDebit, Analytical: true},
		{ID: 4, Code: "1.1.2", Name: "Bancos", Type: catalog.AccountTypeAsset, Nature: catalog.NatureDebit, Analytical: true},
		{ID: 5, Code: "1.2", Name: "Ativo Não Circulante", Type: catalog.AccountTypeAsset, Nature: catalog.NatureDebit, Synthetic: true},
		{ID: 6, Code: "1.2.1", Name: "Imobilizado", Type: catalog.AccountTypeAsset, Nature: catalog.NatureDebit, Analytical: true},
	}
}

func TestBuildHierarchySyntheticSums(t *testing.T) {
	values := map[int64]ledger.Cents{3: 100_00, 4: 250_00, 6: 900_00}
	tree := BuildHierarchy(assetAccounts(), values, nil, "1")

	if len(tree) != 1 {
		t.Fatalf("expected single root, got %d", len(tree))
	}
	root := tree[0]
	if root.Code != "1" || !root.Synthetic {
		t.Fatalf("unexpected root: %+v", root)
	}
	if root.Value != 1250_00 {
		t.Fatalf("root value %d, want 125000", root.Value)
	}
	if len(root.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(root.Children))
	}
	current := root.Children[0]
	if current.Code != "1.1" || current.Value != 350_00 {
		t.Fatalf("unexpected current assets node: %+v", current)
	}
	if len(current.Children) != 2 || current.Children[0].Code != "1.1.1" {
		t.Fatalf("unexpected leaves: %+v", current.Children)
	}
}

func TestBuildHierarchyIdempotent(t *testing.T) {
	values := map[int64]ledger.Cents{3: 100_00, 6: 50_00}
	first := BuildHierarchy(assetAccounts(), values, nil, "1")
	second := BuildHierarchy(assetAccounts(), values, nil, "1")
	if !reflect.DeepEqual(first, second) {
		t.Fatal("two builds over the same input must be identical")
	}
}

func TestBuildHierarchyPrunesZeroLeaves(t *testing.T) {
	values := map[int64]ledger.Cents{3: 100_00}
	tree := BuildHierarchy(assetAccounts(), values, nil, "1")

	root := tree[0]
	if len(root.Children) != 1 || root.Children[0].Code != "1.1" {
		t.Fatalf("expected only 1.1 to survive, got %+v", root.Children)
	}
	leaves := root.Children[0].Children
	if len(leaves) != 1 || leaves[0].Code != "1.1.1" {
		t.Fatalf("zero-balance leaf 1.1.2 must be pruned, got %+v", leaves)
	}
}

func TestBuildHierarchyKeepsLeafWithOnlyPreviousValue(t *testing.T) {
	previous := map[int64]ledger.Cents{4: 80_00}
	tree := BuildHierarchy(assetAccounts(), nil, previous, "1")

	if len(tree) != 1 {
		t.Fatalf("expected one root, got %d", len(tree))
	}
	leaves := tree[0].Children[0].Children
	if len(leaves) != 1 || leaves[0].Code != "1.1.2" || leaves[0].PreviousValue != 80_00 {
		t.Fatalf("leaf with prior-period value must survive, got %+v", leaves)
	}
}

func TestBuildHierarchyMissingParentBecomesRoot(t *testing.T) {
	accounts := []catalog.Account{
		// 1.3 has no parent 1 in the catalog; incomplete charts are
		// tolerated.
		{ID: 10, Code: "1.3.1", Name: "Órfã", Type: catalog.AccountTypeAsset, Nature: catalog.NatureDebit, Analytical: true},
	}
	tree := BuildHierarchy(accounts, map[int64]ledger.Cents{10: 10_00}, nil, "1")
	if len(tree) != 1 || tree[0].Code != "1.3.1" {
		t.Fatalf("orphan must become its own root, got %+v", tree)
	}
}

func TestBuildHierarchyIgnoresPostedSyntheticBalance(t *testing.T) {
	// An erroneous posting on the synthetic 1.1 must not leak into the
	// tree: the synthetic value is recomputed from children.
	values := map[int64]ledger.Cents{2: 999_00, 3: 100_00}
	tree := BuildHierarchy(assetAccounts(), values, nil, "1.1")
	if len(tree) != 1 {
		t.Fatalf("expected one root, got %d", len(tree))
	}
	if tree[0].Value != 100_00 {
		t.Fatalf("synthetic value %d, want recomputed 10000", tree[0].Value)
	}
}
