package reorder

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ValidationError одна проблема формы; Reason — текст для пользователя.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string { return e.Field + ": " + e.Reason }

type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	parts := make([]string, 0, len(es))
	for _, e := range es {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

// Has есть ли ошибка по полю.
func (es ValidationErrors) Has(field string) bool {
	for _, e := range es {
		if e.Field == field {
			return true
		}
	}
	return false
}

const (
	FieldQuantity   = "quantity"
	FieldItems      = "items"
	FieldWarehouses = "warehouses"
	FieldName       = "name"
)

type draft struct {
	Quantity       decimal.Decimal
	ItemCodes      []string `validate:"min=1,dive,required"`
	WarehouseCodes []string
	ItemName       string

	registryNonEmpty bool
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func engine() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterStructValidation(func(sl validator.StructLevel) {
			d := sl.Current().Interface().(draft)
			// decimal сравнивается точно, без перевода во float
			switch {
			case d.Quantity.Sign() <= 0:
				sl.ReportError(d.Quantity, "Quantity", "Quantity", "gt", "0")
			case !d.Quantity.Equal(d.Quantity.Truncate(QuantityScale)):
				sl.ReportError(d.Quantity, "Quantity", "Quantity", "quantity_scale", "")
			case d.Quantity.Cmp(maxQuantity) >= 0:
				sl.ReportError(d.Quantity, "Quantity", "Quantity", "quantity_max", "")
			}
			if d.registryNonEmpty && len(d.WarehouseCodes) == 0 {
				sl.ReportError(d.WarehouseCodes, "WarehouseCodes", "WarehouseCodes", "warehouses_required", "")
			}
			if len(d.ItemCodes) > 1 && strings.TrimSpace(d.ItemName) == "" {
				sl.ReportError(d.ItemName, "ItemName", "ItemName", "group_name_required", "")
			}
		}, draft{})
		validate = v
	})
	return validate
}

// QuantityScale знаков после запятой в пороге; столько же хранит колонка
// reorder_points.reorder_quantity NUMERIC(18,4).
const QuantityScale = 4

var maxQuantity = decimal.New(1, 18-QuantityScale)

// tagReasons уточняют текст для отдельных проверок поля.
var tagReasons = map[string]ValidationError{
	"quantity_scale": {FieldQuantity, "не больше 4 знаков после запятой"},
	"quantity_max":   {FieldQuantity, "слишком большое количество"},
}

var reasons = map[string]ValidationError{
	"Quantity":       {FieldQuantity, "количество должно быть больше нуля"},
	"ItemCodes":      {FieldItems, "выберите хотя бы одну позицию"},
	"WarehouseCodes": {FieldWarehouses, "выберите хотя бы один склад"},
	"ItemName":       {FieldName, "для группы позиций нужно название"},
}

// Validate проверка перед отправкой: количество > 0, хотя бы одна позиция,
// хотя бы один склад при непустом справочнике, название у групповой точки.
// Ничего не пишет: при ошибке запрос в хранилище не уходит.
func Validate(p Point, registryNonEmpty bool) error {
	p = p.Normalize()
	err := engine().Struct(draft{
		Quantity:         p.ReorderQuantity,
		ItemCodes:        p.ItemCodes,
		WarehouseCodes:   p.WarehouseCodes,
		ItemName:         p.ItemName,
		registryNonEmpty: registryNonEmpty,
	})
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	out := make(ValidationErrors, 0, len(ves))
	seen := map[string]bool{}
	for _, fe := range ves {
		field := fe.StructField()
		if i := strings.IndexByte(field, '['); i >= 0 {
			field = field[:i]
		}
		ve, ok := tagReasons[fe.Tag()]
		if !ok {
			ve, ok = reasons[field]
		}
		if !ok {
			ve = ValidationError{Field: strings.ToLower(field), Reason: fe.Tag()}
		}
		if seen[ve.Field] {
			continue
		}
		seen[ve.Field] = true
		out = append(out, ve)
	}
	return out
}
