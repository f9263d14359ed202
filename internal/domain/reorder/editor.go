package reorder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

var ErrEditorClosed = errors.New("reorder: editor is closed")

type Mode int

const (
	ModeClosed Mode = iota
	ModeNew
	ModeExisting
)

// Saver то, куда уходит проверенная точка (reorder.Repo).
type Saver interface {
	Upsert(ctx context.Context, p Point) (Point, error)
}

// Editor форма точки заказа: closed → editing(new|existing) → closed.
// Промежуточных сохранений нет; неудачная отправка оставляет форму открытой.
type Editor struct {
	mode    Mode
	draft   Point
	lastErr error
}

func (e *Editor) Mode() Mode     { return e.mode }
func (e *Editor) Editing() bool  { return e.mode != ModeClosed }
func (e *Editor) Draft() Point   { return e.draft }
func (e *Editor) LastErr() error { return e.lastErr }

func (e *Editor) Open() {
	e.mode = ModeNew
	e.draft = Point{}
	e.lastErr = nil
}

func (e *Editor) OpenExisting(p Point) {
	e.mode = ModeExisting
	e.draft = p
	e.draft.ItemCodes = append([]string(nil), p.ItemCodes...)
	e.draft.WarehouseCodes = append([]string(nil), p.WarehouseCodes...)
	e.lastErr = nil
}

// Restore поднимает форму из сохранённого состояния диалога.
func (e *Editor) Restore(mode Mode, p Point) {
	e.mode = mode
	e.draft = p
	e.lastErr = nil
}

func (e *Editor) Has(code string) bool { return contains(e.draft.ItemCodes, code) }

func (e *Editor) HasWarehouse(code string) bool { return contains(e.draft.WarehouseCodes, code) }

// ToggleItem добавляет/убирает материал; единица берётся с первого выбранного.
func (e *Editor) ToggleItem(n *catalog.Node) error {
	if e.mode == ModeClosed {
		return ErrEditorClosed
	}
	if n == nil || n.IsGroup() {
		return nil
	}
	if contains(e.draft.ItemCodes, n.Code) {
		e.draft.ItemCodes = remove(e.draft.ItemCodes, n.Code)
	} else {
		e.draft.ItemCodes = append(e.draft.ItemCodes, n.Code)
		if e.draft.Unit == "" {
			e.draft.Unit = n.Unit
		}
	}
	e.draft.IsGroup = len(e.draft.ItemCodes) > 1
	return nil
}

// SelectGroup выбрать всю группу: добавляет все материалы поддерева.
// Название группы подставляется, если своё ещё не задано.
func (e *Editor) SelectGroup(n *catalog.Node) (added int, err error) {
	if e.mode == ModeClosed {
		return 0, ErrEditorClosed
	}
	for _, leaf := range collectLeaves(n) {
		if contains(e.draft.ItemCodes, leaf.Code) {
			continue
		}
		e.draft.ItemCodes = append(e.draft.ItemCodes, leaf.Code)
		if e.draft.Unit == "" {
			e.draft.Unit = leaf.Unit
		}
		added++
	}
	e.draft.IsGroup = len(e.draft.ItemCodes) > 1
	if e.draft.IsGroup && e.draft.ItemName == "" && n.IsGroup() {
		e.draft.ItemName = n.Name
	}
	return added, nil
}

func collectLeaves(n *catalog.Node) []*catalog.Node {
	codes := catalog.CollectLeafCodes(n)
	out := make([]*catalog.Node, 0, len(codes))
	for _, c := range codes {
		if leaf := catalog.FindByCode([]*catalog.Node{n}, c); leaf != nil {
			out = append(out, leaf)
		}
	}
	return out
}

func (e *Editor) ToggleWarehouse(code string) error {
	if e.mode == ModeClosed {
		return ErrEditorClosed
	}
	if contains(e.draft.WarehouseCodes, code) {
		e.draft.WarehouseCodes = remove(e.draft.WarehouseCodes, code)
	} else {
		e.draft.WarehouseCodes = append(e.draft.WarehouseCodes, code)
	}
	return nil
}

// SetQuantity разбирает ввод пользователя; запятая допускается как разделитель.
func (e *Editor) SetQuantity(text string) error {
	if e.mode == ModeClosed {
		return ErrEditorClosed
	}
	s := strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	q, err := decimal.NewFromString(s)
	if err != nil {
		return ValidationErrors{{Field: FieldQuantity, Reason: "введите число, например 10 или 2.5"}}
	}
	e.draft.ReorderQuantity = q
	return nil
}

func (e *Editor) SetName(name string) error {
	if e.mode == ModeClosed {
		return ErrEditorClosed
	}
	e.draft.ItemName = strings.TrimSpace(name)
	return nil
}

// Submit проверка, затем сохранение. При успехе форма закрывается, вызывающий
// перечитывает список. При ошибке форма остаётся открытой, ошибка в LastErr.
func (e *Editor) Submit(ctx context.Context, saver Saver, registryNonEmpty bool) (Point, error) {
	if e.mode == ModeClosed {
		return Point{}, ErrEditorClosed
	}
	p := e.draft.Normalize()
	if err := Validate(p, registryNonEmpty); err != nil {
		e.lastErr = err
		return Point{}, err
	}
	saved, err := saver.Upsert(ctx, p)
	if err != nil {
		if !errors.Is(err, ErrFetch) {
			err = fmt.Errorf("%w: %w", ErrFetch, err)
		}
		e.lastErr = err
		return Point{}, err
	}
	e.mode = ModeClosed
	e.draft = Point{}
	e.lastErr = nil
	return saved, nil
}

// Cancel черновик отбрасывается.
func (e *Editor) Cancel() {
	e.mode = ModeClosed
	e.draft = Point{}
	e.lastErr = nil
}

func contains(list []string, s string) bool { return slices.Contains(list, s) }

func remove(list []string, s string) []string {
	return slices.DeleteFunc(slices.Clone(list), func(v string) bool { return v == s })
}
