package bot

import (
	"context"
	"strings"

	"github.com/Spok95/erp-catalog-bot/internal/domain/reorder"
	"github.com/Spok95/erp-catalog-bot/internal/domain/users"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// checkReorder после каждой принятой загрузки: новые срабатывания уходят админам.
func (b *Bot) checkReorder(ctx context.Context) {
	if b.points == nil {
		return
	}
	s := b.current()
	if s == nil {
		return
	}
	cctx, cancel := withTimeout(ctx)
	defer cancel()
	_, fresh, err := b.watcher.Check(cctx, s.tree, s.registry)
	if err != nil {
		b.log.Error("reorder check failed", "err", err)
		return
	}
	if len(fresh) == 0 {
		return
	}
	b.log.Info("reorder points triggered", "count", len(fresh))
	b.notifyReorderRecipients(cctx, triggeredText(fresh))
}

func triggeredText(fresh []reorder.Status) string {
	var sb strings.Builder
	sb.WriteString("⚠️ Пора заказать:")
	for _, st := range fresh {
		sb.WriteString("\n" + reorderLine(st))
	}
	return sb.String()
}

func (b *Bot) notifyReorderRecipients(ctx context.Context, text string) {
	// не шлём одному и тому же chat_id дважды
	sent := map[int64]struct{}{}
	sendOnce := func(chatID int64) {
		if chatID == 0 {
			return
		}
		if _, ok := sent[chatID]; ok {
			return
		}
		m := tgbotapi.NewMessage(chatID, text)
		m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📉 Открыть список", "ro:list"),
		))
		b.send(m)
		sent[chatID] = struct{}{}
	}

	// 1) админ-чат (может быть личка или группа)
	sendOnce(b.adminChat)

	// 2) админы
	list, err := b.users.ListByRole(ctx, users.RoleAdmin)
	if err != nil {
		b.log.Error("list admins failed", "err", err)
		return
	}
	for _, u := range list {
		sendOnce(u.TelegramID)
	}
}
