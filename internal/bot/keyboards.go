package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const pageSize = 20

func navKeyboard(back bool, cancel bool) tgbotapi.InlineKeyboardMarkup {
	row := []tgbotapi.InlineKeyboardButton{}
	if back {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "nav:back"))
	}
	if cancel {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✖️ Отменить", "nav:cancel"))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// mainReplyKeyboard Нижняя панель
func mainReplyKeyboard(admin bool) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		{tgbotapi.NewKeyboardButton("Каталог")},
		{tgbotapi.NewKeyboardButton("Точки заказа"), tgbotapi.NewKeyboardButton("Выгрузка")},
	}
	if admin {
		rows = append(rows, []tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton("Исключения поиска")})
	}
	return tgbotapi.ReplyKeyboardMarkup{ResizeKeyboard: true, Keyboard: rows}
}

// pageBounds границы страницы; page приводится в допустимый диапазон.
func pageBounds(total, page, size int) (from, to, pages, fixed int) {
	if size <= 0 {
		size = pageSize
	}
	pages = (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}
	from = page * size
	to = from + size
	if to > total {
		to = total
	}
	return from, to, pages, page
}

// pagerRow стрелки листания; nil, если страница одна.
func pagerRow(prefix string, page, pages int) []tgbotapi.InlineKeyboardButton {
	if pages <= 1 {
		return nil
	}
	row := []tgbotapi.InlineKeyboardButton{}
	if page > 0 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("◀️", fmt.Sprintf("%s:%d", prefix, page-1)))
	}
	row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d/%d", page+1, pages), "noop"))
	if page < pages-1 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("▶️", fmt.Sprintf("%s:%d", prefix, page+1)))
	}
	return row
}

func exportKeyboard(warehouses []string) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📦 Все остатки", "xp:bal")),
	}
	for i, w := range warehouses {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🏬 "+w, fmt.Sprintf("xp:w:%d", i)),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📉 Точки заказа", "xp:ro")),
		navKeyboard(false, true).InlineKeyboard[0],
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
