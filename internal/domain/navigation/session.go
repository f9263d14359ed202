package navigation

import (
	"time"

	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/search"
)

// SearchPrefs настройки, которые нужны и листингу, и поиску.
type SearchPrefs interface {
	Prefs
	SearchExclusions() map[string]bool
}

// Session просмотр каталога одним пользователем: путь + поисковая строка.
// Путь под активным поиском не трогается и снова показывается после очистки.
type Session struct {
	State
	ShowHidden bool
	ShowZero   bool

	policy search.Policy
	query  *search.Debouncer
}

// NewSession onSettle вызывается из горутины таймера; потребитель сам переносит
// событие в свой цикл.
func NewSession(policy search.Policy, delay time.Duration, clock search.Clock, onSettle func(query string)) *Session {
	return &Session{
		ShowZero: true,
		policy:   policy,
		query:    search.NewDebouncer(delay, clock, onSettle),
	}
}

func (s *Session) Input(query string) { s.query.Input(query) }

func (s *Session) RawQuery() string       { return s.query.Raw() }
func (s *Session) EffectiveQuery() string { return s.query.Effective() }
func (s *Session) Pending() bool          { return s.query.Pending() }

// SearchActive устоявшийся запрос проходит минимальную длину.
func (s *Session) SearchActive() bool { return s.policy.Active(s.query.Effective()) }

// GoHome на корень и сразу выход из поиска.
func (s *Session) GoHome() {
	s.DrillTo(-1)
	s.query.Input("")
}

func (s *Session) Close() { s.query.Stop() }

type View struct {
	Breadcrumb Breadcrumb
	Items      []*catalog.Node
	Search     bool
	Pending    bool
	Raw        string
}

// View что показать сейчас: ранжированные результаты поиска или текущий уровень.
// Фильтр нулевых остатков к результатам поиска не применяется, скрытые группы поиск не исключают.
func (s *Session) View(tree *catalog.Tree, prefs SearchPrefs, col *catalog.Collator) View {
	v := View{Pending: s.Pending(), Raw: s.RawQuery()}
	if col == nil {
		col = catalog.NewCollator()
	}
	total := tree.Total
	var roots []*catalog.Node
	if tree != nil {
		roots = tree.Roots
	}

	if s.SearchActive() {
		q := s.EffectiveQuery()
		var excluded map[string]bool
		var isFav func(string) bool
		if prefs != nil {
			excluded = prefs.SearchExclusions()
			isFav = prefs.IsFavoriteMaterial
		}
		hits := search.Search(roots, q, excluded, col)
		ranked := search.Rank(hits, search.RankOptions{
			Query:          q,
			BalanceContext: true,
			Total:          total,
			IsFavorite:     isFav,
			Collator:       col,
		})
		v.Search = true
		v.Breadcrumb = s.Breadcrumb(q)
		v.Items = search.Nodes(ranked)
		return v
	}

	var p Prefs
	if prefs != nil {
		p = prefs
	}
	v.Breadcrumb = s.Breadcrumb("")
	v.Items = Listing(s.CurrentLevel(roots), ListOptions{
		Prefs:      p,
		Total:      total,
		ShowHidden: s.ShowHidden,
		ShowZero:   s.ShowZero,
		Collator:   col,
	})
	return v
}
