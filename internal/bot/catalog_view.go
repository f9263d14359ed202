package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/Spok95/erp-catalog-bot/internal/dialog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/navigation"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// crumbLine «Каталог › Металлы › Лист» или заголовок результатов поиска.
func crumbLine(bc navigation.Breadcrumb) string {
	if bc.SearchResults {
		return fmt.Sprintf("🔎 Результаты поиска: «%s»", bc.Query)
	}
	names := make([]string, 0, len(bc.Crumbs))
	for _, c := range bc.Crumbs {
		names = append(names, c.Name)
	}
	return strings.Join(names, " › ")
}

func formatQty(q decimal.Decimal, unit string) string {
	s := q.StringFixed(3)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "" || s == "-" {
		s = "0"
	}
	if unit == "" {
		return s
	}
	return s + " " + unit
}

// itemLabel подпись кнопки элемента уровня или результата поиска.
func itemLabel(n *catalog.Node, prefs navigation.Prefs, total decimal.Decimal) string {
	var sb strings.Builder
	if n.IsGroup() {
		if prefs != nil && prefs.IsFavoriteGroup(n.Code) {
			sb.WriteString("⭐ ")
		}
		if prefs != nil && prefs.IsHiddenGroup(n.Code) {
			sb.WriteString("🙈 ")
		}
		sb.WriteString("📁 ")
		sb.WriteString(n.Name)
		return sb.String()
	}
	if prefs != nil && prefs.IsFavoriteMaterial(n.Code) {
		sb.WriteString("⭐ ")
	}
	sb.WriteString(n.Name)
	sb.WriteString(" — ")
	sb.WriteString(formatQty(total, n.Unit))
	return sb.String()
}

func onOff(v bool) string {
	if v {
		return "вкл"
	}
	return "выкл"
}

func (b *Bot) openCatalog(ctx context.Context, s *chatSession) {
	s.card = ""
	s.page = 0
	s.msgID = 0
	b.setState(ctx, s, dialog.StateBrowse)
	b.loadPrefs(ctx, s)
	if b.current() == nil {
		b.refreshCatalog(ctx, s.chatID)
	}
	b.renderCatalog(s)
}

func (b *Bot) renderCatalog(s *chatSession) {
	tree := b.tree()
	if tree == nil {
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔄 Обновить", "cv:reload")),
		)
		b.screen(s, "⏳ Каталог загружается, попробуйте через минуту.", kb)
		return
	}
	if s.card != "" {
		if n, err := tree.Lookup(s.card); err == nil {
			b.renderCard(s, n)
			return
		}
		s.card = ""
	}

	v := s.nav.View(tree, s.prefs, b.collator)
	s.items = v.Items

	var sb strings.Builder
	sb.WriteString(crumbLine(v.Breadcrumb))
	if v.Pending {
		sb.WriteString("\n⏳ ищу «" + v.Raw + "»…")
	} else if v.Raw != "" && !v.Search {
		sb.WriteString(fmt.Sprintf("\nЗапрос слишком короткий, нужно от %d символов.", b.policy.MinLength))
	}
	if s.prefsErr != nil {
		sb.WriteString("\n⚠️ Настройки не загрузились, избранное и скрытие временно недоступны.")
	}
	if len(v.Items) == 0 {
		if v.Search {
			sb.WriteString("\n\nНичего не найдено.")
		} else {
			sb.WriteString("\n\nЗдесь пусто.")
		}
	} else if !v.Search {
		sb.WriteString("\n\nВведите текст, чтобы искать по всему каталогу.")
	}

	from, to, pages, page := pageBounds(len(v.Items), s.page, pageSize)
	s.page = page
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for i := from; i < to; i++ {
		n := v.Items[i]
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(itemLabel(n, s.prefs, tree.Total(n.Code)), fmt.Sprintf("cv:o:%d", i)),
		))
	}
	if pr := pagerRow("cv:pg", page, pages); pr != nil {
		rows = append(rows, pr)
	}

	if v.Search {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Сбросить поиск", "cv:clr"),
		))
	} else {
		if cur := s.nav.Current(); cur != nil && s.prefsErr == nil {
			g := s.prefs.Group(cur.Code)
			fav := "☆ В избранное"
			if g.Favorite {
				fav = "★ Убрать из избранного"
			}
			hide := "🙈 Скрыть группу"
			if g.Hidden {
				hide = "👁 Показать группу"
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(fav, "pf:gf"),
				tgbotapi.NewInlineKeyboardButtonData(hide, "pf:gh"),
			))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Скрытые: "+onOff(s.nav.ShowHidden), "cv:th"),
			tgbotapi.NewInlineKeyboardButtonData("Нулевые: "+onOff(s.nav.ShowZero), "cv:tz"),
		))
		if crumbs := v.Breadcrumb.Crumbs; len(crumbs) > 2 {
			// промежуточные уровни пути, без корня и текущей группы
			row := []tgbotapi.InlineKeyboardButton{}
			for _, c := range crumbs[1 : len(crumbs)-1] {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData("↩️ "+c.Name, fmt.Sprintf("cv:to:%d", c.Index)))
			}
			rows = append(rows, row)
		}
		nav := []tgbotapi.InlineKeyboardButton{}
		if s.nav.Depth() > 0 {
			nav = append(nav,
				tgbotapi.NewInlineKeyboardButtonData("⬆️ Вверх", "cv:up"),
				tgbotapi.NewInlineKeyboardButtonData("🏠 "+navigation.HomeTitle, "cv:home"),
			)
		}
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("🔄", "cv:reload"))
		rows = append(rows, nav)
	}

	b.screen(s, sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// cardText карточка материала: остатки по складам и итог.
func cardText(n *catalog.Node, rows []catalog.FlatBalanceRow, favorite bool) string {
	var sb strings.Builder
	if favorite {
		sb.WriteString("⭐ ")
	}
	sb.WriteString(n.Name)
	sb.WriteString("\nКод: " + n.Code)
	if n.Unit != "" {
		sb.WriteString("\nЕд. изм.: " + n.Unit)
	}
	sb.WriteString("\n\nОстатки:")
	total := decimal.Zero
	found := false
	for _, r := range rows {
		if r.Code != n.Code || r.WarehouseName == "" {
			continue
		}
		found = true
		total = total.Add(r.Quantity)
		sb.WriteString(fmt.Sprintf("\n• %s: %s", r.WarehouseName, formatQty(r.Quantity, n.Unit)))
	}
	if !found {
		sb.WriteString("\n— нет на складах")
	}
	sb.WriteString("\n\nИтого: " + formatQty(total, n.Unit))
	return sb.String()
}

func (b *Bot) renderCard(s *chatSession, n *catalog.Node) {
	tree := b.tree()
	fav := s.prefs.IsFavoriteMaterial(n.Code)
	favText := "☆ В избранное"
	if fav {
		favText = "★ Убрать из избранного"
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	if s.prefsErr == nil {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(favText, "pf:mf")))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ К списку", "cv:back")))
	b.screen(s, cardText(n, tree.Rows, fav), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// handleCatalogCallback кнопки экрана каталога (cv:*).
func (b *Bot) handleCatalogCallback(ctx context.Context, s *chatSession, cb *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) < 2 {
		return
	}
	if s.state != dialog.StateBrowse {
		b.setState(ctx, s, dialog.StateBrowse)
	}
	switch parts[1] {
	case "o":
		idx, ok := indexArg(parts, 2, len(s.items))
		if !ok {
			b.answerCallback(cb, "Список устарел, откройте заново", false)
			return
		}
		n := s.items[idx]
		if n.IsGroup() {
			if !s.nav.DrillInto(n) {
				return
			}
			s.page = 0
			b.setState(ctx, s, dialog.StateBrowse)
		} else {
			s.card = n.Code
		}
	case "to":
		i, ok := indexArg(parts, 2, s.nav.Depth())
		if !ok {
			i = -1
		}
		s.nav.DrillTo(i)
		s.page = 0
		b.setState(ctx, s, dialog.StateBrowse)
	case "up":
		s.nav.Up()
		s.page = 0
		b.setState(ctx, s, dialog.StateBrowse)
	case "home":
		s.nav.GoHome()
		s.page = 0
		b.setState(ctx, s, dialog.StateBrowse)
	case "back":
		s.card = ""
	case "clr":
		s.nav.Input("")
		s.page = 0
	case "th":
		s.nav.ShowHidden = !s.nav.ShowHidden
		s.page = 0
	case "tz":
		s.nav.ShowZero = !s.nav.ShowZero
		s.page = 0
	case "pg":
		if p, ok := indexArg(parts, 2, 1<<20); ok {
			s.page = p
		}
	case "reload":
		b.refreshCatalog(ctx, s.chatID)
		b.answerCallback(cb, "Обновляю каталог…", false)
		return
	}
	b.renderCatalog(s)
}

// onSearchText текст в режиме каталога — поисковая строка.
func (b *Bot) onSearchText(s *chatSession, text string) {
	s.card = ""
	s.nav.Input(strings.TrimSpace(text))
	// сразу показываем «ищу…», результат придёт после паузы
	b.renderCatalog(s)
}
