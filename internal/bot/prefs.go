package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Spok95/erp-catalog-bot/internal/dialog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/preferences"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// applyWrite оптимистично: экран перерисован сразу, запись уходит в фоне,
// результат вернётся событием prefWritten.
func (b *Bot) applyWrite(ctx context.Context, s *chatSession, w preferences.Write) {
	s.retry = nil
	b.sendWrite(ctx, s, w)
}

func (b *Bot) sendWrite(ctx context.Context, s *chatSession, w preferences.Write) {
	store, overlay, chatID := b.prefs, s.prefs, s.chatID
	s.writes++
	go func() {
		wctx, cancel := withTimeout(ctx)
		defer cancel()
		err := overlay.Send(wctx, store, w)
		b.post(prefWritten{chatID: chatID, w: w, err: err})
	}()
}

func (b *Bot) onPrefWritten(e prefWritten) {
	s, ok := b.sessions[e.chatID]
	if !ok {
		return
	}
	if s.writes > 0 {
		s.writes--
	}
	if e.err == nil {
		b.metrics.PreferenceWrite("ok")
		return
	}
	b.log.Error("preference write failed", "err", e.err, "chat_id", e.chatID, "key", e.w.Key())
	if !s.prefs.Fail(e.w) {
		// запись уже перекрыта более новой, откатывать нечего
		b.metrics.PreferenceWrite("error")
		return
	}
	b.metrics.PreferenceWrite("rolled_back")
	w := e.w
	s.retry = &w

	if s.state == dialog.StateBrowse {
		b.renderCatalog(s)
	}
	m := tgbotapi.NewMessage(s.chatID, "⚠️ Не удалось сохранить настройку, изменение отменено.")
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔁 Повторить", "pf:retry"),
	))
	b.send(m)
}

// handlePrefCallback pf:* избранное/скрытие и повтор неудавшейся записи.
func (b *Bot) handlePrefCallback(ctx context.Context, s *chatSession, cb *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) < 2 || b.prefs == nil {
		return
	}
	if s.prefsErr != nil {
		b.answerCallback(cb, "Настройки недоступны", true)
		return
	}
	switch parts[1] {
	case "gf":
		cur := s.nav.Current()
		if cur == nil {
			return
		}
		g := s.prefs.Group(cur.Code)
		if !g.Favorite && g.Hidden {
			b.answerCallback(cb, "Скрытую группу нельзя добавить в избранное. Сначала покажите её.", true)
			return
		}
		b.applyWrite(ctx, s, s.prefs.SetGroupFavorite(cur.Code, !g.Favorite))
	case "gh":
		cur := s.nav.Current()
		if cur == nil {
			return
		}
		g := s.prefs.Group(cur.Code)
		b.applyWrite(ctx, s, s.prefs.SetGroupHidden(cur.Code, !g.Hidden))
		if !g.Hidden && !s.nav.ShowHidden {
			// скрыли группу, в которой стоим: поднимаемся на уровень выше
			s.nav.Up()
			b.setState(ctx, s, dialog.StateBrowse)
			b.answerCallback(cb, "Группа скрыта", false)
		}
	case "mf":
		if s.card == "" {
			return
		}
		b.applyWrite(ctx, s, s.prefs.SetMaterialFavorite(s.card, !s.prefs.IsFavoriteMaterial(s.card)))
	case "retry":
		if s.retry == nil {
			b.answerCallback(cb, "Нечего повторять", false)
			return
		}
		w := b.reapply(s, *s.retry)
		s.retry = nil
		b.sendWrite(ctx, s, w)
		b.answerCallback(cb, "Повторяю…", false)
		if s.state == dialog.StateBrowse {
			b.renderCatalog(s)
		}
		return
	}
	b.renderCatalog(s)
}

// reapply повтор ставит то же значение заново, с новой версией.
func (b *Bot) reapply(s *chatSession, w preferences.Write) preferences.Write {
	switch {
	case w.Group != nil:
		if w.Group.Hidden != nil {
			return s.prefs.SetGroupHidden(w.Group.GroupCode, *w.Group.Hidden)
		}
		return s.prefs.SetGroupFavorite(w.Group.GroupCode, *w.Group.Favorite)
	case w.Material != nil:
		return s.prefs.SetMaterialFavorite(w.Material.MaterialCode, w.Material.Favorite)
	}
	return s.prefs.SetExclusions(w.Exclusions)
}

// --- исключения поиска ---

func (b *Bot) openExclusions(ctx context.Context, s *chatSession) {
	if b.tree() == nil {
		b.notify(s.chatID, "Каталог ещё не загружен.")
		return
	}
	b.loadPrefs(ctx, s)
	if s.prefsErr != nil {
		b.notify(s.chatID, "Настройки недоступны, попробуйте позже.")
		return
	}
	s.exclDraft = s.prefs.SearchExclusions()
	s.msgID = 0
	b.setState(ctx, s, dialog.StateExclusions)
	b.renderExclusions(s)
}

// exclusionRoots только верхний уровень: глубже исключения не действуют.
func (b *Bot) exclusionRoots() []*catalog.Node {
	tree := b.tree()
	if tree == nil {
		return nil
	}
	out := append([]*catalog.Node(nil), tree.Roots...)
	sort.SliceStable(out, func(i, j int) bool { return b.collator.Less(out[i].Name, out[j].Name) })
	return out
}

func (b *Bot) renderExclusions(s *chatSession) {
	roots := b.exclusionRoots()
	s.items = roots
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for i, n := range roots {
		mark := "🔍"
		if s.exclDraft[n.Code] {
			mark = "🚫"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark+" "+n.Name, fmt.Sprintf("ex:t:%d", i)),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💾 Сохранить", "ex:save")),
		navKeyboard(false, true).InlineKeyboard[0],
	)
	text := "Исключения поиска.\n🚫 — раздел не участвует в поиске, 🔍 — участвует."
	b.screen(s, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleExclusionsCallback(ctx context.Context, s *chatSession, cb *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) < 2 || s.state != dialog.StateExclusions {
		b.answerCallback(cb, "Экран устарел", false)
		return
	}
	switch parts[1] {
	case "t":
		idx, ok := indexArg(parts, 2, len(s.items))
		if !ok {
			return
		}
		code := s.items[idx].Code
		if s.exclDraft[code] {
			delete(s.exclDraft, code)
		} else {
			s.exclDraft[code] = true
		}
		b.renderExclusions(s)
	case "save":
		codes := make([]string, 0, len(s.exclDraft))
		for c := range s.exclDraft {
			codes = append(codes, c)
		}
		b.applyWrite(ctx, s, s.prefs.SetExclusions(codes))
		b.setState(ctx, s, dialog.StateIdle)
		b.send(tgbotapi.NewEditMessageText(s.chatID, s.msgID, exclusionSummary(b.exclusionRoots(), s.exclDraft)))
		s.exclDraft = nil
		s.msgID = 0
	}
}

func exclusionSummary(roots []*catalog.Node, excluded map[string]bool) string {
	var names []string
	for _, n := range roots {
		if excluded[n.Code] {
			names = append(names, n.Name)
		}
	}
	if len(names) == 0 {
		return "✅ Поиск идёт по всему каталогу."
	}
	return "✅ Не ищем в: " + strings.Join(names, ", ")
}
