package navigation

import "github.com/Spok95/erp-catalog-bot/internal/domain/catalog"

// State путь спуска по дереву: стек групп-предков. На узлах ничего не храним,
// текущий уровень всегда выводится из пути и корней.
type State struct {
	path []*catalog.Node
}

func (s *State) Path() []*catalog.Node {
	out := make([]*catalog.Node, len(s.path))
	copy(out, s.path)
	return out
}

func (s *State) Depth() int { return len(s.path) }

// Current последняя группа в пути или nil на корне.
func (s *State) Current() *catalog.Node {
	if len(s.path) == 0 {
		return nil
	}
	return s.path[len(s.path)-1]
}

// CurrentLevel дети последней группы пути или корни дерева.
func (s *State) CurrentLevel(roots []*catalog.Node) []*catalog.Node {
	if cur := s.Current(); cur != nil {
		return cur.Children
	}
	return roots
}

// DrillInto материалы не открываются; возвращает false, если узел не группа.
func (s *State) DrillInto(node *catalog.Node) bool {
	if !node.IsGroup() {
		return false
	}
	s.path = append(s.path, node)
	return true
}

// DrillTo обрезает путь до index+1 элементов; -1 — на корень.
func (s *State) DrillTo(index int) {
	switch {
	case index < 0:
		s.path = s.path[:0]
	case index+1 < len(s.path):
		s.path = s.path[:index+1]
	}
}

// Up шаг назад; на корне ничего не делает.
func (s *State) Up() {
	s.DrillTo(len(s.path) - 2)
}

func (s *State) Reset() { s.path = nil }

// Codes путь кодами, для хранения в payload диалога.
func (s *State) Codes() []string {
	out := make([]string, 0, len(s.path))
	for _, n := range s.path {
		out = append(out, n.Code)
	}
	return out
}

// Restore восстанавливает путь по кодам на новом дереве. Спуск идёт по детям,
// первый неразрешимый код обрезает хвост. Возвращает глубину восстановленного пути.
func (s *State) Restore(roots []*catalog.Node, codes []string) int {
	s.path = s.path[:0]
	level := roots
	for _, code := range codes {
		var next *catalog.Node
		for _, n := range level {
			if n.Code == code && n.IsGroup() {
				next = n
				break
			}
		}
		if next == nil {
			break
		}
		s.path = append(s.path, next)
		level = next.Children
	}
	return len(s.path)
}

// Crumb элемент хлебных крошек; Index передаётся в DrillTo.
type Crumb struct {
	Index int
	Code  string
	Name  string
}

// Breadcrumb либо путь (с корнем), либо отдельное состояние «результаты поиска».
type Breadcrumb struct {
	SearchResults bool
	Query         string
	Crumbs        []Crumb
}

const HomeTitle = "Каталог"

func (s *State) Breadcrumb(effectiveQuery string) Breadcrumb {
	if effectiveQuery != "" {
		return Breadcrumb{SearchResults: true, Query: effectiveQuery}
	}
	b := Breadcrumb{Crumbs: make([]Crumb, 0, len(s.path)+1)}
	b.Crumbs = append(b.Crumbs, Crumb{Index: -1, Name: HomeTitle})
	for i, n := range s.path {
		b.Crumbs = append(b.Crumbs, Crumb{Index: i, Code: n.Code, Name: n.Name})
	}
	return b
}
