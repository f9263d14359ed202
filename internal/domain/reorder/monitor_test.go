package reorder

import (
	"fmt"
	"testing"

	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func scenario() (*catalog.Tree, *catalog.Registry) {
	tree := catalog.NewTree([]*catalog.Node{
		catalog.NewGroup("G", "Металлы",
			catalog.NewMaterial("001", "Лист", "kg", catalog.Qty("Warehouse A", 4), catalog.Qty("Warehouse B", 20)),
			catalog.NewMaterial("002", "Пруток", "kg", catalog.Qty("Warehouse A", 3)),
		),
	})
	reg := catalog.NewRegistry([]catalog.Warehouse{
		{Code: "WA", Name: "Warehouse A"},
		{Code: "WB", Name: "Warehouse B"},
	})
	return tree, reg
}

func TestGroupPointRestrictedToWarehouse(t *testing.T) {
	tree, reg := scenario()
	p := Point{ItemCodes: []string{"001", "002"}, ReorderQuantity: dec("10"), WarehouseCodes: []string{"WA"}}

	assert.True(t, dec("7").Equal(CurrentQuantity(p, tree.Rows, reg)))
	st := Evaluate(p, tree.Rows, reg)
	assert.True(t, dec("-3").Equal(st.Diff), "diff %s", st.Diff)
	assert.Equal(t, StateTriggered, st.State)
	assert.True(t, st.Triggered())
}

func TestEmptyWarehouseCodesCountsEverything(t *testing.T) {
	tree, reg := scenario()
	p := Point{ItemCodes: []string{"001", "002"}, ReorderQuantity: dec("10")}
	assert.True(t, dec("27").Equal(CurrentQuantity(p, tree.Rows, reg)))
}

func TestUnresolvableWarehousesFailOpen(t *testing.T) {
	tree, reg := scenario()
	p := Point{ItemCodes: []string{"001"}, ReorderQuantity: dec("1"), WarehouseCodes: []string{"GONE"}}
	assert.True(t, dec("24").Equal(CurrentQuantity(p, tree.Rows, reg)))

	// хотя бы один разрешимый код — ограничение действует
	p.WarehouseCodes = []string{"GONE", "WB"}
	assert.True(t, dec("20").Equal(CurrentQuantity(p, tree.Rows, reg)))

	assert.True(t, dec("24").Equal(CurrentQuantity(p, tree.Rows, nil)), "nil registry resolves nothing")
}

func TestClassification(t *testing.T) {
	tree, reg := scenario()
	tests := []struct {
		threshold string
		want      State
	}{
		{"6.5", StateHealthy},
		{"7", StateAtThreshold},
		{"7.01", StateTriggered},
	}
	points := make([]Point, 0, len(tests))
	for _, tt := range tests {
		p := Point{ItemCodes: []string{"001", "002"}, ReorderQuantity: dec(tt.threshold), WarehouseCodes: []string{"WA"}}
		points = append(points, p)
		assert.Equal(t, tt.want, Evaluate(p, tree.Rows, reg).State, "threshold %s", tt.threshold)
	}
	assert.Equal(t, 2, TriggeredCount(points, tree.Rows, reg), "at threshold counts as triggered")
}

func TestReportOrderAndNames(t *testing.T) {
	tree, reg := scenario()
	points := []Point{
		{ID: "a", ItemCodes: []string{"001"}, ReorderQuantity: dec("1")},
		{ID: "b", ItemCodes: []string{"002"}, ReorderQuantity: dec("5")},
		{ID: "c", ItemCodes: []string{"XYZ"}, ReorderQuantity: dec("1")},
		{ID: "d", ItemName: "Всё", ItemCodes: []string{"001", "002"}, ReorderQuantity: dec("100")},
	}
	rep := Report(points, tree, reg)
	require.Len(t, rep, 4)

	assert.Equal(t, "d", rep[0].Point.ID)
	assert.Equal(t, "Всё", rep[0].Name)
	assert.Equal(t, "b", rep[1].Point.ID)
	assert.Equal(t, "Пруток", rep[1].Name)
	assert.Equal(t, "c", rep[2].Point.ID)
	assert.Equal(t, "XYZ", rep[2].Name, "unknown code falls back to the raw code")
	assert.Equal(t, "a", rep[3].Point.ID)
	assert.False(t, rep[3].Triggered())
}

func TestDisplayNameWithoutTree(t *testing.T) {
	assert.Equal(t, "001", DisplayName(Point{ItemCodes: []string{"001"}}, nil))
	assert.Equal(t, "", DisplayName(Point{}, nil))
}

func TestEmptyRestrictionEqualsUnrestrictedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		whs := []string{"A", "B", "C"}
		n := rapid.IntRange(1, 6).Draw(t, "materials")
		var mats []*catalog.Node
		for i := 0; i < n; i++ {
			var bal []catalog.WarehouseBalance
			for _, w := range whs {
				if rapid.Bool().Draw(t, "has") {
					bal = append(bal, catalog.Qty(w, float64(rapid.IntRange(0, 50).Draw(t, "q"))))
				}
			}
			mats = append(mats, catalog.NewMaterial(fmt.Sprintf("m%d", i), "м", "pcs", bal...))
		}
		tree := catalog.NewTree([]*catalog.Node{catalog.NewGroup("g", "г", mats...)})
		reg := catalog.NewRegistry([]catalog.Warehouse{{Code: "a", Name: "A"}, {Code: "b", Name: "B"}})

		var codes []string
		for _, c := range catalog.CollectLeafCodes(tree.Roots[0]) {
			if rapid.Bool().Draw(t, "pick") {
				codes = append(codes, c)
			}
		}
		if len(codes) == 0 {
			codes = []string{"m0"}
		}
		p := Point{ItemCodes: codes, ReorderQuantity: dec("1")}

		want := decimal.Zero
		for _, c := range codes {
			want = want.Add(catalog.TotalQuantity(tree.Rows, c))
		}
		if got := CurrentQuantity(p, tree.Rows, reg); !got.Equal(want) {
			t.Fatalf("current %s, unrestricted sum %s", got, want)
		}
	})
}
