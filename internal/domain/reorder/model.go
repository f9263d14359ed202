package reorder

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrFetch сбой обращения к хранилищу точек заказа.
var ErrFetch = errors.New("reorder: store request failed")

// Point точка заказа: порог по одному материалу или группе материалов,
// при необходимости только по части складов. Пустой WarehouseCodes — все склады.
type Point struct {
	ID              string
	ItemName        string
	ReorderQuantity decimal.Decimal
	Unit            string
	IsGroup         bool
	ItemCodes       []string
	WarehouseCodes  []string
	UpdatedAt       time.Time
}

// Normalize IsGroup выводится из числа позиций; дубли кодов убираются.
func (p Point) Normalize() Point {
	p.ItemCodes = dedup(p.ItemCodes)
	p.WarehouseCodes = dedup(p.WarehouseCodes)
	p.IsGroup = len(p.ItemCodes) > 1
	return p
}

func dedup(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

type State int

const (
	StateHealthy     State = iota // diff > 0
	StateAtThreshold              // diff == 0, тоже считается сработавшей
	StateTriggered                // diff < 0
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateAtThreshold:
		return "at_threshold"
	case StateTriggered:
		return "triggered"
	}
	return "unknown"
}

// Status результат оценки одной точки.
type Status struct {
	Point   Point
	Name    string
	Current decimal.Decimal
	Diff    decimal.Decimal
	State   State
}

// Triggered diff <= 0.
func (s Status) Triggered() bool { return s.State != StateHealthy }
