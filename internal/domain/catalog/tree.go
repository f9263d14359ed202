package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("catalog: node not found")

// Flatten обходит дерево в глубину слева направо в исходном порядке.
// Материал без остатков даёт ровно одну строку с нулём и пустым складом.
func Flatten(roots []*Node) []FlatBalanceRow {
	var out []FlatBalanceRow
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if n == nil {
				continue
			}
			if n.IsGroup() {
				walk(n.Children)
				continue
			}
			if len(n.Balances) == 0 {
				out = append(out, FlatBalanceRow{Code: n.Code, Name: n.Name, Unit: n.Unit, Quantity: decimal.Zero})
				continue
			}
			for _, b := range n.Balances {
				out = append(out, FlatBalanceRow{
					Code:          n.Code,
					Name:          n.Name,
					Unit:          n.Unit,
					Quantity:      b.Quantity,
					WarehouseName: b.WarehouseName,
				})
			}
		}
	}
	walk(roots)
	return out
}

// TotalQuantity сумма по всем складам без учёта ограничений.
func TotalQuantity(rows []FlatBalanceRow, code string) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rows {
		if r.Code == code {
			sum = sum.Add(r.Quantity)
		}
	}
	return sum
}

// Totals индекс код → суммарный остаток, считается один раз на загрузку.
func Totals(rows []FlatBalanceRow) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, r := range rows {
		out[r.Code] = out[r.Code].Add(r.Quantity)
	}
	return out
}

func CountLeaves(roots []*Node) int {
	n := 0
	for _, node := range roots {
		if node == nil {
			continue
		}
		if node.IsGroup() {
			n += CountLeaves(node.Children)
		} else {
			n++
		}
	}
	return n
}

// FindByCode поиск в глубину; при дублях побеждает первое совпадение.
func FindByCode(roots []*Node, code string) *Node {
	for _, n := range roots {
		if n == nil {
			continue
		}
		if n.Code == code {
			return n
		}
		if n.IsGroup() {
			if found := FindByCode(n.Children, code); found != nil {
				return found
			}
		}
	}
	return nil
}

// CollectLeafCodes все коды материалов под узлом (сам узел, если это материал).
func CollectLeafCodes(node *Node) []string {
	if node == nil {
		return nil
	}
	if !node.IsGroup() {
		return []string{node.Code}
	}
	var out []string
	for _, ch := range node.Children {
		out = append(out, CollectLeafCodes(ch)...)
	}
	return out
}

// Tree неизменяемый снимок каталога на время одной загрузки.
type Tree struct {
	Roots  []*Node
	Rows   []FlatBalanceRow
	totals map[string]decimal.Decimal
	leaves int
}

func NewTree(roots []*Node) *Tree {
	rows := Flatten(roots)
	return &Tree{
		Roots:  roots,
		Rows:   rows,
		totals: Totals(rows),
		leaves: CountLeaves(roots),
	}
}

func (t *Tree) Total(code string) decimal.Decimal {
	if t == nil {
		return decimal.Zero
	}
	return t.totals[code]
}

func (t *Tree) Leaves() int {
	if t == nil {
		return 0
	}
	return t.leaves
}

func (t *Tree) Lookup(code string) (*Node, error) {
	if t == nil {
		return nil, ErrNotFound
	}
	if n := FindByCode(t.Roots, code); n != nil {
		return n, nil
	}
	return nil, ErrNotFound
}
