package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/Spok95/erp-catalog-bot/internal/dialog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/users"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `Команды:
/start — начать работу
/catalog — каталог и остатки
/search <текст> — поиск по каталогу
/reorder — точки заказа
/export — выгрузка в Excel
/exclusions — разделы, исключённые из поиска
/reload — обновить каталог из учётной системы
/cancel — отменить текущее действие
/role <id> admin|viewer — роль пользователя (для админов)

В каталоге просто пишите текст — это поиск.`

// indexArg parts[i] как индекс в [0, n).
func indexArg(parts []string, i, n int) (int, bool) {
	if i >= len(parts) {
		return 0, false
	}
	v, err := strconv.Atoi(parts[i])
	if err != nil || v < 0 || v >= n {
		return 0, false
	}
	return v, true
}

// chatUser профиль из сессии или из базы; nil — пользователь ещё не нажимал /start.
func (b *Bot) chatUser(ctx context.Context, chatID int64, from *tgbotapi.User) *users.User {
	if s, ok := b.sessions[chatID]; ok && s.user != nil {
		return s.user
	}
	if from == nil {
		return nil
	}
	u, err := b.users.GetByTelegramID(ctx, from.ID)
	if err != nil {
		b.log.Error("get user failed", "err", err, "tg_id", from.ID)
		return nil
	}
	return u
}

func (b *Bot) onMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleStateMessage(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.Command() == "start" {
		role := users.RoleViewer
		// авто-админ
		if msg.From.ID == b.adminChat {
			role = users.RoleAdmin
		}
		u, err := b.users.UpsertFromTelegram(ctx, users.Telegram{
			ID:        msg.From.ID,
			Username:  msg.From.UserName,
			FirstName: msg.From.FirstName,
			LastName:  msg.From.LastName,
		}, role)
		if err != nil {
			b.log.Error("upsert user failed", "err", err, "tg_id", msg.From.ID)
			b.send(tgbotapi.NewMessage(chatID, "Ошибка: не удалось сохранить профиль"))
			return
		}
		s := b.session(ctx, chatID, u)
		m := tgbotapi.NewMessage(chatID, "Привет, "+u.DisplayName()+"! Каталог и остатки — кнопка «Каталог», пороги заказа — «Точки заказа».")
		m.ReplyMarkup = mainReplyKeyboard(u.IsAdmin())
		b.send(m)
		b.openCatalog(ctx, s)
		return
	}

	u := b.chatUser(ctx, chatID, msg.From)
	if u == nil {
		b.send(tgbotapi.NewMessage(chatID, "Сначала нажмите /start"))
		return
	}
	s := b.session(ctx, chatID, u)

	switch msg.Command() {
	case "help":
		b.send(tgbotapi.NewMessage(chatID, helpText))
	case "catalog":
		b.openCatalog(ctx, s)
	case "search":
		s.nav.DrillTo(-1)
		b.openCatalog(ctx, s)
		if q := strings.TrimSpace(msg.CommandArguments()); q != "" {
			b.onSearchText(s, q)
		}
	case "reorder":
		s.msgID = 0
		s.page = 0
		b.openReorderList(ctx, s, "")
	case "export":
		b.openExport(ctx, s)
	case "exclusions":
		b.openExclusions(ctx, s)
	case "reload":
		b.refreshCatalog(ctx, chatID)
		b.send(tgbotapi.NewMessage(chatID, "🔄 Обновляю каталог…"))
	case "cancel":
		b.cancel(ctx, s)
	case "role":
		b.setRole(ctx, s, msg.CommandArguments())
	default:
		b.send(tgbotapi.NewMessage(chatID, "Не знаю такую команду. Наберите /help"))
	}
}

func (b *Bot) handleStateMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	u := b.chatUser(ctx, chatID, msg.From)
	if u == nil {
		b.send(tgbotapi.NewMessage(chatID, "Сначала нажмите /start"))
		return
	}
	s := b.session(ctx, chatID, u)

	// Нижняя панель
	switch msg.Text {
	case "Каталог":
		b.openCatalog(ctx, s)
		return
	case "Точки заказа":
		s.msgID = 0
		s.page = 0
		b.openReorderList(ctx, s, "")
		return
	case "Выгрузка":
		b.openExport(ctx, s)
		return
	case "Исключения поиска":
		b.openExclusions(ctx, s)
		return
	}

	switch {
	case s.state == dialog.StateBrowse:
		b.onSearchText(s, msg.Text)
	case s.state.Editing():
		b.onEditorText(ctx, s, msg.Text)
	default:
		b.send(tgbotapi.NewMessage(chatID, "Откройте «Каталог», чтобы искать, или наберите /help"))
	}
}

// setRole /role <telegram id> admin|viewer. Новая роль действует сразу,
// в том числе для уже открытой сессии.
func (b *Bot) setRole(ctx context.Context, s *chatSession, args string) {
	if !s.user.IsAdmin() {
		b.send(tgbotapi.NewMessage(s.chatID, "Доступ запрещён"))
		return
	}
	f := strings.Fields(args)
	if len(f) != 2 {
		b.send(tgbotapi.NewMessage(s.chatID, "Формат: /role <id> admin|viewer"))
		return
	}
	tgID, err := strconv.ParseInt(f[0], 10, 64)
	role := users.Role(f[1])
	if err != nil || (role != users.RoleAdmin && role != users.RoleViewer) {
		b.send(tgbotapi.NewMessage(s.chatID, "Формат: /role <id> admin|viewer"))
		return
	}
	if tgID == s.user.TelegramID && role != users.RoleAdmin {
		b.send(tgbotapi.NewMessage(s.chatID, "Нельзя снять роль администратора с себя"))
		return
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()
	u, err := b.users.SetRole(cctx, tgID, role)
	if err != nil {
		b.log.Error("set role failed", "err", err, "tg_id", tgID)
		b.send(tgbotapi.NewMessage(s.chatID, "Ошибка: не удалось сменить роль"))
		return
	}
	if u == nil {
		b.send(tgbotapi.NewMessage(s.chatID, "Пользователь не найден: он должен сначала нажать /start"))
		return
	}
	if other, ok := b.sessions[tgID]; ok {
		other.user = u
	}
	b.log.Info("role changed", "tg_id", tgID, "role", role, "by", s.user.TelegramID)
	b.send(tgbotapi.NewMessage(s.chatID, "✅ "+u.DisplayName()+": "+string(role)))
}

// cancel закрывает форму и возвращает в покой.
func (b *Bot) cancel(ctx context.Context, s *chatSession) {
	if s.editor.Editing() {
		s.editor.Cancel()
	}
	s.exclDraft = nil
	if s.msgID != 0 {
		b.send(tgbotapi.NewEditMessageText(s.chatID, s.msgID, "Отменено."))
	} else {
		b.notify(s.chatID, "Отменено.")
	}
	s.msgID = 0
	s.state = dialog.StateIdle
	if err := b.states.Reset(ctx, s.chatID); err != nil {
		b.log.Error("dialog reset failed", "err", err, "chat_id", s.chatID)
	}
}

func (b *Bot) onCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	// по умолчанию просто гасим «часики»; обработчик может ответить сам раньше
	defer b.answerCallback(cb, "", false)

	u := b.chatUser(ctx, chatID, cb.From)
	if u == nil {
		b.send(tgbotapi.NewMessage(chatID, "Сначала нажмите /start"))
		return
	}
	s := b.session(ctx, chatID, u)
	// кнопка со старого экрана после перезапуска: настроек в памяти ещё нет
	if !s.prefsLoaded {
		b.loadPrefs(ctx, s)
	}

	parts := strings.Split(cb.Data, ":")
	// кнопки живут на конкретном сообщении: дальше правим именно его.
	// Повтор записи приходит с отдельного предупреждения, экран остаётся прежним.
	if cb.Data != "pf:retry" {
		s.msgID = cb.Message.MessageID
	}
	switch parts[0] {
	case "cv":
		b.handleCatalogCallback(ctx, s, cb, parts)
	case "pf":
		b.handlePrefCallback(ctx, s, cb, parts)
	case "ex":
		b.handleExclusionsCallback(ctx, s, cb, parts)
	case "ro":
		b.handleReorderCallback(ctx, s, cb, parts)
	case "re":
		b.handleEditorCallback(ctx, s, cb, parts)
	case "xp":
		b.handleExportCallback(ctx, s, cb, parts)
	case "nav":
		b.cancel(ctx, s)
	}
}
