package bot

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Spok95/erp-catalog-bot/internal/dialog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/reorder"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	sheetBalances = "Остатки"
	sheetUnits    = "Итоги"
	sheetReorder  = "Точки заказа"
)

func writeRows(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	return nil
}

// balancesWorkbook плоская таблица остатков; warehouse != "" — только один склад.
// Второй лист — итоги по единицам измерения.
func balancesWorkbook(rows []catalog.FlatBalanceRow, warehouse string, units []string) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheetBalances); err != nil {
		return nil, err
	}

	data := make([][]interface{}, 0, len(rows))
	byUnit := map[string]decimal.Decimal{}
	for _, r := range rows {
		if r.WarehouseName == "" {
			continue
		}
		if warehouse != "" && r.WarehouseName != warehouse {
			continue
		}
		data = append(data, []interface{}{r.WarehouseName, r.Code, r.Name, r.Unit, r.Quantity.InexactFloat64()})
		byUnit[r.Unit] = byUnit[r.Unit].Add(r.Quantity)
	}
	header := []interface{}{"Склад", "Код", "Наименование", "Ед. изм.", "Количество"}
	if err := writeRows(f, sheetBalances, header, data); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(sheetUnits); err != nil {
		return nil, err
	}
	totals := make([][]interface{}, 0, len(units))
	for _, u := range units {
		q, ok := byUnit[u]
		if !ok {
			continue
		}
		totals = append(totals, []interface{}{u, q.InexactFloat64()})
	}
	if err := writeRows(f, sheetUnits, []interface{}{"Ед. изм.", "Количество"}, totals); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func reorderWorkbook(report []reorder.Status, reg *catalog.Registry) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheetReorder); err != nil {
		return nil, err
	}
	data := make([][]interface{}, 0, len(report))
	for _, st := range report {
		p := st.Point
		data = append(data, []interface{}{
			st.Name,
			strings.Join(p.ItemCodes, ", "),
			warehouseNames(p.WarehouseCodes, reg),
			p.Unit,
			p.ReorderQuantity.InexactFloat64(),
			st.Current.InexactFloat64(),
			st.Diff.InexactFloat64(),
			st.State.String(),
		})
	}
	header := []interface{}{"Название", "Коды", "Склады", "Ед. изм.", "Порог", "Остаток", "Разница", "Состояние"}
	if err := writeRows(f, sheetReorder, header, data); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *Bot) openExport(ctx context.Context, s *chatSession) {
	if b.tree() == nil {
		b.refreshCatalog(ctx, s.chatID)
		b.notify(s.chatID, "⏳ Каталог загружается, попробуйте через минуту.")
		return
	}
	// повторный вход в раздел: склады и единицы пересобираются с текущего дерева
	rows := b.tree().Rows
	b.whOpts.Reset()
	b.unitOpts.Reset()
	b.whOpts = catalog.Accumulate(b.whOpts, rows, catalog.ByWarehouse)
	b.unitOpts = catalog.Accumulate(b.unitOpts, rows, catalog.ByUnit)

	s.msgID = 0
	b.setState(ctx, s, dialog.StateExport)
	b.screen(s, "Что выгрузить в Excel?", exportKeyboard(b.whOpts.Sorted(b.collator)))
}

// handleExportCallback xp:* формирование и отправка файла.
func (b *Bot) handleExportCallback(ctx context.Context, s *chatSession, cb *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) < 2 {
		return
	}
	snap := b.current()
	if snap == nil {
		b.answerCallback(cb, "Каталог ещё не загружен", true)
		return
	}
	stamp := time.Now().Format("20060102_150405")
	units := b.unitOpts.Sorted(b.collator)

	var (
		buf     *bytes.Buffer
		err     error
		name    string
		caption string
	)
	switch parts[1] {
	case "bal":
		buf, err = balancesWorkbook(snap.tree.Rows, "", units)
		name = "balances_" + stamp + ".xlsx"
		caption = "Остатки по всем складам."
	case "w":
		whs := b.whOpts.Sorted(b.collator)
		idx, ok := indexArg(parts, 2, len(whs))
		if !ok {
			b.answerCallback(cb, "Список устарел, откройте заново", false)
			return
		}
		buf, err = balancesWorkbook(snap.tree.Rows, whs[idx], units)
		name = fmt.Sprintf("balances_%s_%s.xlsx", whs[idx], stamp)
		caption = fmt.Sprintf("Остатки склада «%s».", whs[idx])
	case "ro":
		report, rerr := b.loadReport(ctx)
		if rerr != nil {
			b.log.Error("reorder report failed", "err", rerr)
			b.answerCallback(cb, "Не удалось получить точки заказа", true)
			return
		}
		buf, err = reorderWorkbook(report, snap.registry)
		name = "reorder_" + stamp + ".xlsx"
		caption = kpiLine(report)
	default:
		return
	}
	if err != nil {
		b.log.Error("export failed", "err", err, "kind", parts[1])
		b.notify(s.chatID, "Ошибка формирования файла")
		return
	}

	doc := tgbotapi.NewDocument(s.chatID, tgbotapi.FileBytes{Name: name, Bytes: buf.Bytes()})
	doc.Caption = caption + "\nДанные на " + snap.loadedAt.Format("02.01.2006 15:04")
	b.send(doc)
}
