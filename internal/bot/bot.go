package bot

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Spok95/erp-catalog-bot/internal/dialog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/preferences"
	"github.com/Spok95/erp-catalog-bot/internal/domain/reorder"
	"github.com/Spok95/erp-catalog-bot/internal/domain/search"
	"github.com/Spok95/erp-catalog-bot/internal/domain/users"
	httpapi "github.com/Spok95/erp-catalog-bot/internal/infra/http"
	"github.com/Spok95/erp-catalog-bot/internal/infra/metrics"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender часть tgbotapi.BotAPI, которой пользуется бот.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type UserStore interface {
	GetByTelegramID(ctx context.Context, tgID int64) (*users.User, error)
	UpsertFromTelegram(ctx context.Context, tg users.Telegram, role users.Role) (*users.User, error)
	ListByRole(ctx context.Context, role users.Role) ([]users.User, error)
	SetRole(ctx context.Context, tgID int64, role users.Role) (*users.User, error)
}

type DialogStore interface {
	Get(ctx context.Context, chatID int64) (*dialog.Item, error)
	Set(ctx context.Context, chatID int64, state dialog.State, payload dialog.Payload) error
	Reset(ctx context.Context, chatID int64) error
}

type ReorderStore interface {
	List(ctx context.Context) ([]reorder.Point, error)
	Upsert(ctx context.Context, p reorder.Point) (reorder.Point, error)
	Delete(ctx context.Context, id string) error
}

type Deps struct {
	API       Sender
	Log       *slog.Logger
	Users     UserStore
	States    DialogStore
	Prefs     preferences.Store
	Reorder   ReorderStore
	Source    catalog.Source
	Metrics   *metrics.Metrics
	AdminChat int64

	Section       string
	Search        search.Policy
	Debounce      time.Duration
	CheckInterval time.Duration
	Clock         search.Clock
}

// snapshot последнее принятое дерево; читается и из HTTP-обработчика.
type snapshot struct {
	tree     *catalog.Tree
	registry *catalog.Registry
	loadedAt time.Time
}

type Bot struct {
	api       Sender
	log       *slog.Logger
	users     UserStore
	states    DialogStore
	prefs     preferences.Store
	points    ReorderStore
	source    catalog.Source
	metrics   *metrics.Metrics
	adminChat int64

	section  string
	policy   search.Policy
	debounce time.Duration
	interval time.Duration
	clock    search.Clock
	collator *catalog.Collator

	loader   catalog.Loader
	snap     atomic.Pointer[snapshot]
	whOpts   catalog.OptionSet // склады из остатков с последнего входа в выгрузку
	unitOpts catalog.OptionSet
	watcher  *reorder.Watcher
	sessions map[int64]*chatSession

	events   chan event
	stop     chan struct{}
	stopOnce sync.Once
}

func New(d Deps) *Bot {
	if d.Section == "" {
		d.Section = preferences.DefaultSection
	}
	if d.CheckInterval <= 0 {
		d.CheckInterval = 15 * time.Minute
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(nil)
	}
	b := &Bot{
		api: d.API, log: d.Log.With("component", "bot"),
		users: d.Users, states: d.States, prefs: d.Prefs, points: d.Reorder,
		source: d.Source, metrics: d.Metrics, adminChat: d.AdminChat,
		section: d.Section, policy: d.Search, debounce: d.Debounce,
		interval: d.CheckInterval, clock: d.Clock,
		collator: catalog.NewCollator(),
		watcher:  reorder.NewWatcher(d.Reorder),
		sessions: map[int64]*chatSession{},
		events:   make(chan event, 64),
		stop:     make(chan struct{}),
	}
	b.watcher.OnCount = b.metrics.Triggered
	return b
}

// Run единственный цикл: апдейты Telegram, результаты сетевых вызовов и таймеры
// обрабатываются по очереди, состояние чатов меняется только здесь.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	defer b.stopOnce.Do(func() { close(b.stop) })

	b.refreshCatalog(ctx, 0)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, s := range b.sessions {
				s.nav.Close()
			}
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message != nil {
				b.onMessage(ctx, upd.Message)
			} else if upd.CallbackQuery != nil {
				b.onCallback(ctx, upd.CallbackQuery)
			}
		case ev := <-b.events:
			b.handleEvent(ctx, ev)
		case <-ticker.C:
			b.refreshCatalog(ctx, 0)
		}
	}
}

// post из фоновых горутин в цикл Run.
func (b *Bot) post(ev event) {
	select {
	case b.events <- ev:
	case <-b.stop:
	}
}

func (b *Bot) current() *snapshot { return b.snap.Load() }

func (b *Bot) tree() *catalog.Tree {
	if s := b.current(); s != nil {
		return s.tree
	}
	return nil
}

func (b *Bot) registry() *catalog.Registry {
	if s := b.current(); s != nil {
		return s.registry
	}
	return nil
}

// ReorderReport для HTTP: отчёт по последнему принятому дереву.
func (b *Bot) ReorderReport(ctx context.Context) ([]reorder.Status, time.Time, error) {
	s := b.current()
	if s == nil {
		return nil, time.Time{}, httpapi.ErrNoCatalog
	}
	points, err := b.points.List(ctx)
	if err != nil {
		return nil, s.loadedAt, err
	}
	return reorder.Report(points, s.tree, s.registry), s.loadedAt, nil
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send failed", "err", err)
	}
}

// sendScreen отправляет новый «экран» и запоминает его id для последующих правок.
func (b *Bot) sendScreen(s *chatSession, text string, kb tgbotapi.InlineKeyboardMarkup) {
	m := tgbotapi.NewMessage(s.chatID, text)
	m.ReplyMarkup = kb
	sent, err := b.api.Send(m)
	if err != nil {
		b.log.Error("send failed", "err", err, "chat_id", s.chatID)
		return
	}
	s.msgID = sent.MessageID
}

// screen правит текущий экран, если он есть, иначе шлёт новый.
func (b *Bot) screen(s *chatSession, text string, kb tgbotapi.InlineKeyboardMarkup) {
	if s.msgID == 0 {
		b.sendScreen(s, text, kb)
		return
	}
	b.send(tgbotapi.NewEditMessageTextAndMarkup(s.chatID, s.msgID, text, kb))
}

func (b *Bot) answerCallback(cb *tgbotapi.CallbackQuery, text string, alert bool) {
	resp := tgbotapi.NewCallback(cb.ID, text)
	resp.ShowAlert = alert
	if _, err := b.api.Request(resp); err != nil {
		b.log.Debug("callback answer failed", "err", err)
	}
}

func (b *Bot) notify(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 10*time.Second)
}
