package catalog

import "github.com/shopspring/decimal"

type Kind uint8

const (
	KindMaterial Kind = iota // лист дерева, несёт остатки
	KindGroup                // папка, остатков не несёт
)

// Node узел дерева номенклатуры. Код уникален в пределах всего дерева.
type Node struct {
	Kind     Kind
	Code     string
	Name     string
	Unit     string
	Children []*Node            // только для групп
	Balances []WarehouseBalance // только для материалов
}

func NewGroup(code, name string, children ...*Node) *Node {
	return &Node{Kind: KindGroup, Code: code, Name: name, Children: children}
}

func NewMaterial(code, name, unit string, balances ...WarehouseBalance) *Node {
	return &Node{Kind: KindMaterial, Code: code, Name: name, Unit: unit, Balances: balances}
}

func (n *Node) IsGroup() bool { return n != nil && n.Kind == KindGroup }

// WarehouseBalance остаток по складу. Склад внутри остатка идентифицируется по имени.
type WarehouseBalance struct {
	WarehouseName string
	Quantity      decimal.Decimal
}

// Qty удобный конструктор остатка для тестов и сидов.
func Qty(warehouse string, qty float64) WarehouseBalance {
	return WarehouseBalance{WarehouseName: warehouse, Quantity: decimal.NewFromFloat(qty)}
}

// FlatBalanceRow строка плоской таблицы остатков: материал × склад.
type FlatBalanceRow struct {
	Code          string
	Name          string
	Unit          string
	Quantity      decimal.Decimal
	WarehouseName string
}

type Warehouse struct {
	Code string
	Name string
}

// Registry единственное место, где связаны код и имя склада.
type Registry struct {
	list   []Warehouse
	byCode map[string]string
}

func NewRegistry(ws []Warehouse) *Registry {
	r := &Registry{list: make([]Warehouse, 0, len(ws)), byCode: make(map[string]string, len(ws))}
	for _, w := range ws {
		if w.Code == "" {
			continue
		}
		if _, dup := r.byCode[w.Code]; dup {
			continue
		}
		r.byCode[w.Code] = w.Name
		r.list = append(r.list, w)
	}
	return r
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.list)
}

func (r *Registry) List() []Warehouse {
	if r == nil {
		return nil
	}
	out := make([]Warehouse, len(r.list))
	copy(out, r.list)
	return out
}

func (r *Registry) NameByCode(code string) (string, bool) {
	if r == nil {
		return "", false
	}
	name, ok := r.byCode[code]
	return name, ok
}

// Names переводит коды складов в множество имён; неизвестные коды пропускаются.
func (r *Registry) Names(codes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if name, ok := r.NameByCode(c); ok {
			out[name] = struct{}{}
		}
	}
	return out
}
