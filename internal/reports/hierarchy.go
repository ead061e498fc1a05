package reports

import (
	"sort"

	"github.com/razonete/razonete/internal/catalog"
	"github.com/razonete/razonete/internal/ledger"
)

type hierarchyNode struct {
	item     LineItem
	children []*hierarchyNode
}

// BuildHierarchy turns the flat coded accounts under prefix into a
// pruned tree. An analytical account survives only with a non-zero
// current or previous value; synthetic accounts enter unconditionally
// and are pruned bottom-up when nothing remains beneath them. Synthetic
// values are recomputed from surviving children, never read from the
// balance maps, which keeps the tree consistent even when a summary
// account was erroneously posted to.
//
// A code whose parent code is missing from the kept set becomes its own
// root; incomplete charts of accounts are tolerated, not rejected.
func BuildHierarchy(accounts []catalog.Account, values, previous map[int64]ledger.Cents, prefix string) []LineItem {
	kept := make(map[string]*hierarchyNode)
	var order []string
	for _, acc := range accounts {
		if !catalog.HasPrefix(acc.Code, prefix) {
			continue
		}
		value := values[acc.ID]
		prev := previous[acc.ID]
		if !acc.Synthetic && value == 0 && prev == 0 {
			continue
		}
		kept[acc.Code] = &hierarchyNode{item: LineItem{
			Code:          acc.Code,
			Name:          acc.Name,
			Value:         value,
			PreviousValue: prev,
			Level:         acc.Level(),
			Synthetic:     acc.Synthetic,
		}}
		order = append(order, acc.Code)
	}

	var roots []*hierarchyNode
	for _, code := range order {
		node := kept[code]
		parent, ok := kept[catalog.ParentCode(code)]
		if !ok {
			roots = append(roots, node)
			continue
		}
		parent.children = append(parent.children, node)
	}

	items := make([]LineItem, 0, len(roots))
	for _, root := range roots {
		if item, keep := pruneAndSum(root); keep {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return catalog.CompareCodes(items[i].Code, items[j].Code) < 0
	})
	return items
}

// pruneAndSum walks post-order: children are pruned first, then the
// node itself is dropped when it carries no value and no children.
func pruneAndSum(node *hierarchyNode) (LineItem, bool) {
	item := node.item
	for _, child := range node.children {
		if childItem, keep := pruneAndSum(child); keep {
			item.Children = append(item.Children, childItem)
		}
	}
	sort.Slice(item.Children, func(i, j int) bool {
		return catalog.CompareCodes(item.Children[i].Code, item.Children[j].Code) < 0
	})
	if item.Synthetic {
		var value, prev ledger.Cents
		for _, child := range item.Children {
			value += child.Value
			prev += child.PreviousValue
		}
		if len(item.Children) == 0 && item.Value == 0 && item.PreviousValue == 0 {
			return LineItem{}, false
		}
		item.Value = value
		item.PreviousValue = prev
		return item, true
	}
	if item.Value == 0 && item.PreviousValue == 0 && len(item.Children) == 0 {
		return LineItem{}, false
	}
	return item, true
}
