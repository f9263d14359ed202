package catalog

import "sort"

// OptionSet накопленные значения для выпадающих фильтров (склады, единицы).
// Значение неизменяемо: Accumulate возвращает новый набор.
type OptionSet struct {
	values map[string]struct{}
}

// Accumulate сворачивает новые строки в предыдущий набор.
// Вызывается один раз на каждую успешную загрузку; пустые ключи пропускаются.
func Accumulate(prior OptionSet, rows []FlatBalanceRow, key func(FlatBalanceRow) string) OptionSet {
	next := OptionSet{values: make(map[string]struct{}, len(prior.values))}
	for v := range prior.values {
		next.values[v] = struct{}{}
	}
	for _, r := range rows {
		if v := key(r); v != "" {
			next.values[v] = struct{}{}
		}
	}
	return next
}

// Reset забывает всё накопленное; вызывается при повторном входе в раздел,
// после чего набор снова наполняется из текущего дерева.
func (s *OptionSet) Reset() { s.values = nil }

func ByWarehouse(r FlatBalanceRow) string { return r.WarehouseName }

func ByUnit(r FlatBalanceRow) string { return r.Unit }

func (s OptionSet) Len() int { return len(s.values) }

func (s OptionSet) Has(v string) bool {
	_, ok := s.values[v]
	return ok
}

// Sorted значения в русском алфавитном порядке.
func (s OptionSet) Sorted(c *Collator) []string {
	out := make([]string, 0, len(s.values))
	for v := range s.values {
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return c.Less(out[i], out[j]) })
	return out
}
