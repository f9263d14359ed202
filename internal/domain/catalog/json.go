package catalog

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// wireNode принимает обе кодировки: выгрузку 1С (ЭтоГруппа/Дети/Остатки)
// и «плоскую» английскую (is_group/children/balances).
type wireNode struct {
	Code      string        `json:"code"`
	CodeRU    string        `json:"Код"`
	Name      string        `json:"name"`
	NameRU    string        `json:"Наименование"`
	Unit      string        `json:"unit"`
	UnitRU    string        `json:"ЕдиницаИзмерения"`
	IsGroup   *bool         `json:"is_group"`
	IsGroupRU *bool         `json:"ЭтоГруппа"`
	Children  []*Node       `json:"children"`
	ChildRU   []*Node       `json:"Дети"`
	Balances  []wireBalance `json:"balances"`
	BalRU     []wireBalance `json:"Остатки"`
}

type wireBalance struct {
	Warehouse   string          `json:"warehouse"`
	WarehouseRU string          `json:"Склад"`
	Quantity    decimal.Decimal `json:"quantity"`
	QuantityRU  decimal.Decimal `json:"Количество"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	n.Code = firstNonEmpty(w.Code, w.CodeRU)
	n.Name = firstNonEmpty(w.Name, w.NameRU)
	n.Unit = firstNonEmpty(w.Unit, w.UnitRU)
	if n.Code == "" {
		return fmt.Errorf("catalog node without code: %s", truncate(data, 80))
	}

	children := w.Children
	if len(children) == 0 {
		children = w.ChildRU
	}
	balances := w.Balances
	if len(balances) == 0 {
		balances = w.BalRU
	}

	// Признак группы: явный флаг, иначе по наличию детей.
	isGroup := len(children) > 0
	switch {
	case w.IsGroup != nil:
		isGroup = *w.IsGroup
	case w.IsGroupRU != nil:
		isGroup = *w.IsGroupRU
	}

	if isGroup {
		n.Kind = KindGroup
		n.Children = children
		n.Balances = nil
		return nil
	}
	n.Kind = KindMaterial
	n.Children = nil
	n.Balances = make([]WarehouseBalance, 0, len(balances))
	for _, b := range balances {
		qty := b.Quantity
		if qty.IsZero() && !b.QuantityRU.IsZero() {
			qty = b.QuantityRU
		}
		n.Balances = append(n.Balances, WarehouseBalance{
			WarehouseName: firstNonEmpty(b.Warehouse, b.WarehouseRU),
			Quantity:      qty,
		})
	}
	return nil
}

type wireWarehouse struct {
	Code   string `json:"code"`
	CodeRU string `json:"Код"`
	Name   string `json:"name"`
	NameRU string `json:"Наименование"`
}

func (w *Warehouse) UnmarshalJSON(data []byte) error {
	var ww wireWarehouse
	if err := json.Unmarshal(data, &ww); err != nil {
		return err
	}
	w.Code = firstNonEmpty(ww.Code, ww.CodeRU)
	w.Name = firstNonEmpty(ww.Name, ww.NameRU)
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
