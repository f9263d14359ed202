package search

import (
	"fmt"
	"testing"

	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func sampleRoots() []*catalog.Node {
	return []*catalog.Node{
		catalog.NewGroup("T1", "Крепёж",
			catalog.NewMaterial("00100X", "Шайба", "pcs", catalog.Qty("A", 10)),
			catalog.NewGroup("T1.1", "Болты",
				catalog.NewMaterial("B-1", "Болт 001", "pcs", catalog.Qty("A", 3)),
				catalog.NewMaterial("B-2", "болт м8", "pcs"),
			),
		),
		catalog.NewGroup("T2", "Архив",
			catalog.NewMaterial("OLD-1", "Болт старый", "pcs", catalog.Qty("A", 1)),
		),
	}
}

func codes(hits []Hit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Node.Code)
	}
	return out
}

func TestPolicyActive(t *testing.T) {
	p := Policy{MinLength: 3}
	tests := []struct {
		q    string
		want bool
	}{
		{"", false},
		{"  ", false},
		{"аб", false},
		{"абв", true},
		{" аб ", false},
		{"001", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Active(tt.q), "query %q", tt.q)
	}
	assert.True(t, Policy{}.Active("a"))
}

func TestRunDistinguishesInactiveFromEmpty(t *testing.T) {
	c := catalog.NewCollator()
	p := Policy{MinLength: 3}

	res := Run(p, sampleRoots(), "бо", nil, c)
	assert.False(t, res.Active)

	res = Run(p, sampleRoots(), "ничего", nil, c)
	assert.True(t, res.Active)
	assert.Empty(t, res.Hits)
}

func TestSearchCaseInsensitiveNameOrCode(t *testing.T) {
	c := catalog.NewCollator()
	hits := Search(sampleRoots(), "БОЛТ", nil, c)
	assert.ElementsMatch(t, []string{"B-1", "B-2", "OLD-1"}, codes(hits))

	hits = Search(sampleRoots(), "b-2", nil, c)
	require.Len(t, hits, 1)
	assert.True(t, hits[0].CodeMatch)
	assert.False(t, hits[0].NameMatch)
}

func TestSearchSkipsExcludedTopLevel(t *testing.T) {
	c := catalog.NewCollator()
	hits := Search(sampleRoots(), "болт", map[string]bool{"T2": true}, c)
	assert.ElementsMatch(t, []string{"B-1", "B-2"}, codes(hits))

	// исключение ниже верхнего уровня не действует
	hits = Search(sampleRoots(), "болт", map[string]bool{"T1.1": true}, c)
	assert.ElementsMatch(t, []string{"B-1", "B-2", "OLD-1"}, codes(hits))
}

func TestRankNumericQueryPrefersNameMatch(t *testing.T) {
	c := catalog.NewCollator()
	hits := Search(sampleRoots(), "001", nil, c)
	require.Len(t, hits, 2)

	ranked := Rank(hits, RankOptions{Query: "001", Collator: c})
	assert.Equal(t, []string{"B-1", "00100X"}, codes(ranked))
}

func TestRankOrder(t *testing.T) {
	c := catalog.NewCollator()
	tree := catalog.NewTree(sampleRoots())
	hits := Search(tree.Roots, "болт", nil, c)
	favs := map[string]bool{"B-2": true}

	ranked := Rank(hits, RankOptions{
		Query:          "болт",
		BalanceContext: true,
		Total:          tree.Total,
		IsFavorite:     func(code string) bool { return favs[code] },
		Collator:       c,
	})
	// в наличии: B-1, OLD-1 (алфавит: «Болт 001» < «Болт старый»), затем нулевой B-2
	assert.Equal(t, []string{"B-1", "OLD-1", "B-2"}, codes(ranked))

	ranked = Rank(hits, RankOptions{
		Query:      "болт",
		IsFavorite: func(code string) bool { return favs[code] },
		Collator:   c,
	})
	assert.Equal(t, []string{"B-2", "B-1", "OLD-1"}, codes(ranked), "without balance context favorites lead")
}

func TestRankDoesNotMutateInput(t *testing.T) {
	hits := []Hit{
		{Node: catalog.NewMaterial("2", "Б", "pcs")},
		{Node: catalog.NewMaterial("1", "А", "pcs")},
	}
	_ = Rank(hits, RankOptions{Collator: catalog.NewCollator(), Total: func(string) decimal.Decimal { return decimal.Zero }})
	assert.Equal(t, "2", hits[0].Node.Code)
}

func genRoots(t *rapid.T) []*catalog.Node {
	n := rapid.IntRange(0, 5).Draw(t, "tops")
	roots := make([]*catalog.Node, 0, n)
	for i := 0; i < n; i++ {
		m := rapid.IntRange(0, 5).Draw(t, "leaves")
		children := make([]*catalog.Node, 0, m)
		for j := 0; j < m; j++ {
			name := rapid.SampledFrom([]string{"болт", "Болт М8", "гайка", "шайба 001", "труба"}).Draw(t, "name")
			children = append(children, catalog.NewMaterial(fmt.Sprintf("m%d-%d", i, j), name, "pcs"))
		}
		roots = append(roots, catalog.NewGroup(fmt.Sprintf("g%d", i), "группа", children...))
	}
	return roots
}

func TestExclusionSubsetProperty(t *testing.T) {
	c := catalog.NewCollator()
	rapid.Check(t, func(t *rapid.T) {
		roots := genRoots(t)
		q := rapid.SampledFrom([]string{"болт", "001", "а", "м8"}).Draw(t, "query")
		excluded := map[string]bool{}
		for _, r := range roots {
			if rapid.Bool().Draw(t, "exclude") {
				excluded[r.Code] = true
			}
		}
		all := map[string]bool{}
		for _, h := range Search(roots, q, nil, c) {
			all[h.Node.Code] = true
		}
		for _, h := range Search(roots, q, excluded, c) {
			if h.Node.IsGroup() {
				t.Fatalf("search returned group %s", h.Node.Code)
			}
			if !all[h.Node.Code] {
				t.Fatalf("%s present with exclusions but not without", h.Node.Code)
			}
		}
	})
}
