package navigation

import (
	"sort"

	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

// Prefs то, что листингу нужно от настроек пользователя (реализует preferences.Overlay).
type Prefs interface {
	IsHiddenGroup(code string) bool
	IsFavoriteGroup(code string) bool
	IsFavoriteMaterial(code string) bool
}

type noPrefs struct{}

func (noPrefs) IsHiddenGroup(string) bool      { return false }
func (noPrefs) IsFavoriteGroup(string) bool    { return false }
func (noPrefs) IsFavoriteMaterial(string) bool { return false }

type ListOptions struct {
	Prefs      Prefs
	Total      func(code string) decimal.Decimal
	ShowHidden bool
	ShowZero   bool
	Collator   *catalog.Collator
}

// Listing уровень каталога в порядке по умолчанию: скрытые группы отфильтрованы
// (если не включён показ), нулевые материалы отфильтрованы при !ShowZero,
// группы перед материалами, внутри — избранное, затем по алфавиту.
// Группы фильтром нулевых остатков не отсекаются.
func Listing(level []*catalog.Node, opt ListOptions) []*catalog.Node {
	prefs := opt.Prefs
	if prefs == nil {
		prefs = noPrefs{}
	}
	col := opt.Collator
	if col == nil {
		col = catalog.NewCollator()
	}

	out := make([]*catalog.Node, 0, len(level))
	for _, n := range level {
		if n.IsGroup() {
			if !opt.ShowHidden && prefs.IsHiddenGroup(n.Code) {
				continue
			}
		} else if !opt.ShowZero && opt.Total != nil && opt.Total(n.Code).IsZero() {
			continue
		}
		out = append(out, n)
	}

	fav := func(n *catalog.Node) bool {
		if n.IsGroup() {
			return prefs.IsFavoriteGroup(n.Code)
		}
		return prefs.IsFavoriteMaterial(n.Code)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ga, gb := a.IsGroup(), b.IsGroup(); ga != gb {
			return ga
		}
		if fa, fb := fav(a), fav(b); fa != fb {
			return fa
		}
		return col.Less(a.Name, b.Name)
	})
	return out
}
