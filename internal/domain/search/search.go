package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

// Policy минимальная длина запроса; короче — поиска нет вовсе (это не «ноль результатов»).
type Policy struct {
	MinLength int
}

func (p Policy) Active(query string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return false
	}
	return utf8.RuneCountInString(q) >= p.MinLength
}

// Hit найденный материал и где именно совпало.
type Hit struct {
	Node      *catalog.Node
	NameMatch bool
	CodeMatch bool
}

type Result struct {
	Active bool
	Hits   []Hit
}

// Search ищет подстроку в наименовании или коде материалов.
// Верхнеуровневые узлы из excluded пропускаются вместе с поддеревом,
// исключения глубже первого уровня ни на что не влияют.
func Search(roots []*catalog.Node, query string, excluded map[string]bool, c *catalog.Collator) []Hit {
	q := c.Fold(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []Hit
	var walk func(nodes []*catalog.Node)
	walk = func(nodes []*catalog.Node) {
		for _, n := range nodes {
			if n == nil {
				continue
			}
			if n.IsGroup() {
				walk(n.Children)
				continue
			}
			nameHit := strings.Contains(c.Fold(n.Name), q)
			codeHit := strings.Contains(c.Fold(n.Code), q)
			if nameHit || codeHit {
				out = append(out, Hit{Node: n, NameMatch: nameHit, CodeMatch: codeHit})
			}
		}
	}
	for _, root := range roots {
		if root == nil || excluded[root.Code] {
			continue
		}
		walk([]*catalog.Node{root})
	}
	return out
}

// Run применяет политику длины и ищет только при активном запросе.
func Run(p Policy, roots []*catalog.Node, query string, excluded map[string]bool, c *catalog.Collator) Result {
	if !p.Active(query) {
		return Result{}
	}
	return Result{Active: true, Hits: Search(roots, query, excluded, c)}
}

var numericQuery = regexp.MustCompile(`^\d+$`)

type RankOptions struct {
	Query string
	// BalanceContext включает первое правило (ненулевой остаток выше);
	// в выборе позиций для точки заказа остатки не показываются.
	BalanceContext bool
	Total          func(code string) decimal.Decimal
	IsFavorite     func(code string) bool
	Collator       *catalog.Collator
}

// Rank устойчивая многоключевая сортировка результатов поиска:
// остаток > 0, избранное, для цифровых запросов совпадение в имени, алфавит.
func Rank(hits []Hit, opts RankOptions) []Hit {
	out := make([]Hit, len(hits))
	copy(out, hits)
	numeric := numericQuery.MatchString(strings.TrimSpace(opts.Query))

	inStock := func(h Hit) bool {
		if opts.Total == nil {
			return false
		}
		return opts.Total(h.Node.Code).Sign() > 0
	}
	fav := func(h Hit) bool {
		return opts.IsFavorite != nil && opts.IsFavorite(h.Node.Code)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if opts.BalanceContext {
			if sa, sb := inStock(a), inStock(b); sa != sb {
				return sa
			}
		}
		if fa, fb := fav(a), fav(b); fa != fb {
			return fa
		}
		if numeric && a.NameMatch != b.NameMatch {
			return a.NameMatch
		}
		if opts.Collator != nil {
			return opts.Collator.Less(a.Node.Name, b.Node.Name)
		}
		return a.Node.Name < b.Node.Name
	})
	return out
}

func Nodes(hits []Hit) []*catalog.Node {
	out := make([]*catalog.Node, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Node)
	}
	return out
}
