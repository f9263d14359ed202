package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Spok95/erp-catalog-bot/internal/dialog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/navigation"
	"github.com/Spok95/erp-catalog-bot/internal/domain/reorder"
	"github.com/Spok95/erp-catalog-bot/internal/domain/search"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

func stateMarker(st reorder.State) string {
	switch st {
	case reorder.StateTriggered:
		return "🔴"
	case reorder.StateAtThreshold:
		return "🟡"
	}
	return "🟢"
}

func signed(d decimal.Decimal) string {
	s := formatQty(d, "")
	if d.Sign() > 0 {
		return "+" + s
	}
	return s
}

// reorderLine строка списка: отметка, название, остаток / порог.
func reorderLine(st reorder.Status) string {
	return fmt.Sprintf("%s %s — %s / %s (%s)",
		stateMarker(st.State), st.Name,
		formatQty(st.Current, st.Point.Unit), formatQty(st.Point.ReorderQuantity, st.Point.Unit),
		signed(st.Diff))
}

func kpiLine(report []reorder.Status) string {
	n := 0
	for _, st := range report {
		if st.Triggered() {
			n++
		}
	}
	return fmt.Sprintf("Сработало: %d из %d", n, len(report))
}

func (b *Bot) loadReport(ctx context.Context) ([]reorder.Status, error) {
	lctx, cancel := withTimeout(ctx)
	defer cancel()
	points, err := b.points.List(lctx)
	if err != nil {
		return nil, err
	}
	return reorder.Report(points, b.tree(), b.registry()), nil
}

func (b *Bot) openReorderList(ctx context.Context, s *chatSession, note string) {
	if b.tree() == nil {
		b.refreshCatalog(ctx, s.chatID)
		b.notify(s.chatID, "⏳ Каталог загружается, попробуйте через минуту.")
		return
	}
	report, err := b.loadReport(ctx)
	if err != nil {
		b.log.Error("reorder list failed", "err", err)
		b.notify(s.chatID, "⚠️ Не удалось получить точки заказа. Попробуйте позже.")
		return
	}
	s.points = report
	s.pointIdx = -1
	b.setState(ctx, s, dialog.StateReorderList)

	var sb strings.Builder
	if note != "" {
		sb.WriteString(note + "\n\n")
	}
	sb.WriteString("📉 Точки заказа\n" + kpiLine(report))
	if len(report) == 0 {
		sb.WriteString("\n\nТочек пока нет.")
	}

	from, to, pages, page := pageBounds(len(report), s.page, pageSize)
	s.page = page
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for i := from; i < to; i++ {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(reorderLine(report[i]), fmt.Sprintf("ro:o:%d", i)),
		))
	}
	if pr := pagerRow("ro:pg", page, pages); pr != nil {
		rows = append(rows, pr)
	}
	actions := []tgbotapi.InlineKeyboardButton{}
	if s.user.IsAdmin() {
		actions = append(actions, tgbotapi.NewInlineKeyboardButtonData("➕ Новая", "ro:new"))
	}
	actions = append(actions,
		tgbotapi.NewInlineKeyboardButtonData("🔄", "ro:list"),
		tgbotapi.NewInlineKeyboardButtonData("📄 Excel", "xp:ro"),
	)
	rows = append(rows, actions)
	b.screen(s, sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// pointText карточка точки заказа.
func pointText(st reorder.Status, tree *catalog.Tree, reg *catalog.Registry) string {
	p := st.Point
	var sb strings.Builder
	sb.WriteString(stateMarker(st.State) + " " + st.Name)
	if p.IsGroup {
		sb.WriteString(fmt.Sprintf("\nГруппа из %d позиций:", len(p.ItemCodes)))
	} else {
		sb.WriteString("\nПозиция:")
	}
	for _, code := range p.ItemCodes {
		name := code
		if n, err := tree.Lookup(code); err == nil {
			name = n.Name + " (" + code + ")"
		}
		sb.WriteString("\n• " + name)
	}
	sb.WriteString("\nСклады: " + warehouseNames(p.WarehouseCodes, reg))
	sb.WriteString("\n\nПорог: " + formatQty(p.ReorderQuantity, p.Unit))
	sb.WriteString("\nОстаток: " + formatQty(st.Current, p.Unit))
	sb.WriteString("\nРазница: " + signed(st.Diff))
	return sb.String()
}

func warehouseNames(codes []string, reg *catalog.Registry) string {
	if len(codes) == 0 {
		return "все"
	}
	names := make([]string, 0, len(codes))
	for _, c := range codes {
		if n, ok := reg.NameByCode(c); ok {
			names = append(names, n)
		} else {
			names = append(names, c+" (нет в справочнике)")
		}
	}
	return strings.Join(names, ", ")
}

func (b *Bot) renderPoint(s *chatSession) {
	st := s.points[s.pointIdx]
	rows := [][]tgbotapi.InlineKeyboardButton{}
	if s.user.IsAdmin() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ Изменить", "ro:edit"),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", "ro:del"),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ К списку", "ro:list")))
	b.screen(s, pointText(st, b.tree(), b.registry()), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// handleReorderCallback ro:* список и карточка точки.
func (b *Bot) handleReorderCallback(ctx context.Context, s *chatSession, cb *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) < 2 {
		return
	}
	admin := s.user.IsAdmin()
	switch parts[1] {
	case "list":
		b.openReorderList(ctx, s, "")
	case "pg":
		if p, ok := indexArg(parts, 2, 1<<20); ok {
			s.page = p
		}
		b.openReorderList(ctx, s, "")
	case "o":
		idx, ok := indexArg(parts, 2, len(s.points))
		if !ok {
			b.answerCallback(cb, "Список устарел, откройте заново", false)
			return
		}
		s.pointIdx = idx
		b.renderPoint(s)
	case "new":
		if !admin {
			b.answerCallback(cb, "Доступ запрещён", true)
			return
		}
		s.editor.Open()
		s.picker.Reset()
		s.pickQuery = ""
		s.page = 0
		b.setState(ctx, s, dialog.StateReorderPick)
		b.renderPicker(s)
	case "edit":
		if !admin || s.pointIdx < 0 || s.pointIdx >= len(s.points) {
			return
		}
		s.editor.OpenExisting(s.points[s.pointIdx].Point)
		b.setState(ctx, s, dialog.StateReorderQty)
		b.renderHub(s, "")
	case "del":
		if !admin || s.pointIdx < 0 || s.pointIdx >= len(s.points) {
			return
		}
		kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Да, удалить", "ro:delok"),
			tgbotapi.NewInlineKeyboardButtonData("Нет", fmt.Sprintf("ro:o:%d", s.pointIdx)),
		))
		b.screen(s, "Удалить точку «"+s.points[s.pointIdx].Name+"»?", kb)
	case "delok":
		if !admin || s.pointIdx < 0 || s.pointIdx >= len(s.points) {
			return
		}
		id := s.points[s.pointIdx].Point.ID
		dctx, cancel := withTimeout(ctx)
		err := b.points.Delete(dctx, id)
		cancel()
		if err != nil {
			b.log.Error("reorder delete failed", "err", err, "id", id)
			b.answerCallback(cb, "Не удалось удалить, попробуйте ещё раз", true)
			return
		}
		b.watcher.Forget(id)
		b.openReorderList(ctx, s, "🗑 Точка удалена.")
	}
}

// --- форма точки заказа ---

// pickerItems текущий уровень выбора или результаты поиска по всему каталогу.
// Остатки здесь не показываются, поэтому ранжирование без учёта наличия.
func (b *Bot) pickerItems(s *chatSession) []*catalog.Node {
	tree := b.tree()
	if tree == nil {
		return nil
	}
	if b.policy.Active(s.pickQuery) {
		res := search.Run(b.policy, tree.Roots, s.pickQuery, nil, b.collator)
		return search.Nodes(search.Rank(res.Hits, search.RankOptions{
			Query:      s.pickQuery,
			IsFavorite: s.prefs.IsFavoriteMaterial,
			Collator:   b.collator,
		}))
	}
	return navigation.Listing(s.picker.CurrentLevel(tree.Roots), navigation.ListOptions{
		Prefs:      s.prefs,
		ShowHidden: true,
		ShowZero:   true,
		Collator:   b.collator,
	})
}

func (b *Bot) renderPicker(s *chatSession) {
	items := b.pickerItems(s)
	s.pickItems = items
	searching := b.policy.Active(s.pickQuery)

	var sb strings.Builder
	if searching {
		sb.WriteString(crumbLine(navigation.Breadcrumb{SearchResults: true, Query: s.pickQuery}))
	} else {
		sb.WriteString(crumbLine(s.picker.Breadcrumb("")))
	}
	sb.WriteString(fmt.Sprintf("\n\nВыбрано позиций: %d", len(s.editor.Draft().ItemCodes)))
	sb.WriteString("\nОткройте группу или введите текст для поиска.")
	if s.pickQuery != "" && !searching {
		sb.WriteString(fmt.Sprintf("\nЗапрос слишком короткий, нужно от %d символов.", b.policy.MinLength))
	}

	from, to, pages, page := pageBounds(len(items), s.page, pageSize)
	s.page = page
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for i := from; i < to; i++ {
		n := items[i]
		label := "📁 " + n.Name
		if !n.IsGroup() {
			mark := "▫️ "
			if s.editor.Has(n.Code) {
				mark = "✅ "
			}
			label = mark + n.Name + " (" + n.Code + ")"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("re:o:%d", i)),
		))
	}
	if pr := pagerRow("re:pg", page, pages); pr != nil {
		rows = append(rows, pr)
	}
	if searching || s.pickQuery != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Сбросить поиск", "re:clr"),
		))
	} else if s.picker.Current() != nil {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬆️ Вверх", "re:up"),
			tgbotapi.NewInlineKeyboardButtonData("➕ Вся группа", "re:all"),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Готово ➡️", "re:hub"),
		tgbotapi.NewInlineKeyboardButtonData("✖️ Отменить", "re:cancel"),
	))
	b.screen(s, sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func validationText(err error) string {
	var ves reorder.ValidationErrors
	if errors.As(err, &ves) {
		lines := make([]string, 0, len(ves))
		for _, ve := range ves {
			lines = append(lines, "• "+ve.Reason)
		}
		return "Исправьте:\n" + strings.Join(lines, "\n")
	}
	if errors.Is(err, reorder.ErrFetch) {
		return "Не удалось сохранить: хранилище недоступно. Попробуйте ещё раз."
	}
	return "Ошибка: " + err.Error()
}

// hubText сводка черновика.
func hubText(d reorder.Point, tree *catalog.Tree, reg *catalog.Registry) string {
	var sb strings.Builder
	name := reorder.DisplayName(d, tree)
	if name == "" {
		name = "без названия"
	}
	sb.WriteString("📝 Точка заказа: " + name)
	sb.WriteString(fmt.Sprintf("\nПозиций: %d", len(d.ItemCodes)))
	if reg.Len() > 0 {
		whs := "не выбраны"
		if len(d.WarehouseCodes) > 0 {
			whs = warehouseNames(d.WarehouseCodes, reg)
		}
		sb.WriteString("\nСклады: " + whs)
	}
	qty := "не задан"
	if d.ReorderQuantity.Sign() != 0 {
		qty = formatQty(d.ReorderQuantity, d.Unit)
	}
	sb.WriteString("\nПорог: " + qty)
	sb.WriteString("\n\nЧтобы задать порог, отправьте число сообщением.")
	return sb.String()
}

func (b *Bot) renderHub(s *chatSession, problem string) {
	text := hubText(s.editor.Draft(), b.tree(), b.registry())
	if problem != "" {
		text += "\n\n⚠️ " + problem
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	first := []tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonData("📦 Позиции", "re:items")}
	if b.registry().Len() > 0 {
		first = append(first, tgbotapi.NewInlineKeyboardButtonData("🏬 Склады", "re:wh"))
	}
	first = append(first, tgbotapi.NewInlineKeyboardButtonData("✏️ Название", "re:name"))
	rows = append(rows, first, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("💾 Сохранить", "re:save"),
		tgbotapi.NewInlineKeyboardButtonData("✖️ Отменить", "re:cancel"),
	))
	b.screen(s, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) renderWarehousePicker(s *chatSession) {
	whs := b.registry().List()
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for i, w := range whs {
		mark := "▫️ "
		if s.editor.HasWarehouse(w.Code) {
			mark = "✅ "
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark+w.Name, fmt.Sprintf("re:w:%d", i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Готово ➡️", "re:hub")))
	b.screen(s, "Выберите склады, по которым считать остаток:", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// handleEditorCallback re:* шаги формы точки заказа.
func (b *Bot) handleEditorCallback(ctx context.Context, s *chatSession, cb *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) < 2 {
		return
	}
	if !s.user.IsAdmin() {
		b.answerCallback(cb, "Доступ запрещён", true)
		return
	}
	if !s.editor.Editing() {
		b.answerCallback(cb, "Форма закрыта", false)
		return
	}
	switch parts[1] {
	case "o":
		idx, ok := indexArg(parts, 2, len(s.pickItems))
		if !ok {
			return
		}
		n := s.pickItems[idx]
		if n.IsGroup() {
			s.picker.DrillInto(n)
			s.page = 0
		} else {
			_ = s.editor.ToggleItem(n)
		}
		b.setState(ctx, s, dialog.StateReorderPick)
		b.renderPicker(s)
	case "up":
		s.picker.Up()
		s.page = 0
		b.renderPicker(s)
	case "pg":
		if p, ok := indexArg(parts, 2, 1<<20); ok {
			s.page = p
		}
		b.renderPicker(s)
	case "clr":
		s.pickQuery = ""
		s.page = 0
		b.renderPicker(s)
	case "all":
		cur := s.picker.Current()
		if cur == nil {
			return
		}
		added, _ := s.editor.SelectGroup(cur)
		b.setState(ctx, s, dialog.StateReorderPick)
		b.answerCallback(cb, fmt.Sprintf("Добавлено позиций: %d", added), false)
		b.renderPicker(s)
	case "items":
		s.pickQuery = ""
		s.page = 0
		b.setState(ctx, s, dialog.StateReorderPick)
		b.renderPicker(s)
	case "wh":
		b.setState(ctx, s, dialog.StateReorderWarehouse)
		b.renderWarehousePicker(s)
	case "w":
		whs := b.registry().List()
		idx, ok := indexArg(parts, 2, len(whs))
		if !ok {
			return
		}
		_ = s.editor.ToggleWarehouse(whs[idx].Code)
		b.setState(ctx, s, dialog.StateReorderWarehouse)
		b.renderWarehousePicker(s)
	case "name":
		b.setState(ctx, s, dialog.StateReorderName)
		b.screen(s, "Введите название точки заказа:", tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "re:hub")),
		))
	case "hub":
		b.setState(ctx, s, dialog.StateReorderQty)
		b.renderHub(s, "")
	case "save":
		b.submitPoint(ctx, s)
	case "cancel":
		s.editor.Cancel()
		b.openReorderList(ctx, s, "Изменения отменены.")
	}
}

func (b *Bot) submitPoint(ctx context.Context, s *chatSession) {
	sctx, cancel := withTimeout(ctx)
	saved, err := s.editor.Submit(sctx, b.points, b.registry().Len() > 0)
	cancel()
	if err != nil {
		if errors.Is(err, reorder.ErrFetch) {
			b.log.Error("reorder save failed", "err", err)
		}
		b.renderHub(s, validationText(err))
		return
	}
	b.watcher.Forget(saved.ID)
	b.log.Info("reorder point saved", "id", saved.ID, "items", len(saved.ItemCodes))
	b.openReorderList(ctx, s, "✅ Точка заказа сохранена.")
}

// onEditorText текстовый ввод внутри формы.
func (b *Bot) onEditorText(ctx context.Context, s *chatSession, text string) {
	switch s.state {
	case dialog.StateReorderPick:
		s.pickQuery = strings.TrimSpace(text)
		s.page = 0
		b.renderPicker(s)
	case dialog.StateReorderQty:
		if err := s.editor.SetQuantity(text); err != nil {
			b.renderHub(s, validationText(err))
			return
		}
		b.setState(ctx, s, dialog.StateReorderQty)
		b.renderHub(s, "")
	case dialog.StateReorderName:
		_ = s.editor.SetName(text)
		b.setState(ctx, s, dialog.StateReorderQty)
		b.renderHub(s, "")
	case dialog.StateReorderWarehouse:
		b.notify(s.chatID, "Выберите склады кнопками.")
	}
}
