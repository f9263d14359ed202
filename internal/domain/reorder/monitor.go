package reorder

import (
	"errors"
	"sort"

	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

// allowedWarehouses nil — ограничения нет. Если ни один код не разрешился в имя,
// ограничение тоже снимается: лучше посчитать всё, чем показать ложную нехватку.
func allowedWarehouses(p Point, reg *catalog.Registry) map[string]struct{} {
	if len(p.WarehouseCodes) == 0 {
		return nil
	}
	names := reg.Names(p.WarehouseCodes)
	if len(names) == 0 {
		return nil
	}
	return names
}

// CurrentQuantity сумма остатков по всем кодам точки с учётом складов.
func CurrentQuantity(p Point, rows []catalog.FlatBalanceRow, reg *catalog.Registry) decimal.Decimal {
	codes := make(map[string]struct{}, len(p.ItemCodes))
	for _, c := range p.ItemCodes {
		codes[c] = struct{}{}
	}
	allowed := allowedWarehouses(p, reg)

	sum := decimal.Zero
	for _, r := range rows {
		if _, ok := codes[r.Code]; !ok {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[r.WarehouseName]; !ok {
				continue
			}
		}
		sum = sum.Add(r.Quantity)
	}
	return sum
}

func classify(diff decimal.Decimal) State {
	switch diff.Sign() {
	case 1:
		return StateHealthy
	case 0:
		return StateAtThreshold
	}
	return StateTriggered
}

func Evaluate(p Point, rows []catalog.FlatBalanceRow, reg *catalog.Registry) Status {
	cur := CurrentQuantity(p, rows, reg)
	diff := cur.Sub(p.ReorderQuantity)
	return Status{Point: p, Name: p.ItemName, Current: cur, Diff: diff, State: classify(diff)}
}

// TriggeredCount число точек с diff <= 0.
func TriggeredCount(points []Point, rows []catalog.FlatBalanceRow, reg *catalog.Registry) int {
	n := 0
	for _, p := range points {
		if Evaluate(p, rows, reg).Triggered() {
			n++
		}
	}
	return n
}

// Report оценки всех точек: сначала дефицит (по возрастанию diff), затем остальные.
// Имена разрешаются по дереву, если точка без названия.
func Report(points []Point, tree *catalog.Tree, reg *catalog.Registry) []Status {
	var rows []catalog.FlatBalanceRow
	if tree != nil {
		rows = tree.Rows
	}
	out := make([]Status, 0, len(points))
	for _, p := range points {
		st := Evaluate(p, rows, reg)
		st.Name = DisplayName(p, tree)
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ta, tb := a.Triggered(), b.Triggered(); ta != tb {
			return ta
		}
		return a.Diff.LessThan(b.Diff)
	})
	return out
}

// DisplayName название точки. Для точки без названия берётся имя материала;
// если код больше не находится в каталоге — сам код.
func DisplayName(p Point, tree *catalog.Tree) string {
	if p.ItemName != "" {
		return p.ItemName
	}
	if len(p.ItemCodes) == 0 {
		return ""
	}
	code := p.ItemCodes[0]
	n, err := tree.Lookup(code)
	if errors.Is(err, catalog.ErrNotFound) || n == nil {
		return code
	}
	return n.Name
}
