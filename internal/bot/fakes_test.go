package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Spok95/erp-catalog-bot/internal/dialog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/preferences"
	"github.com/Spok95/erp-catalog-bot/internal/domain/reorder"
	"github.com/Spok95/erp-catalog-bot/internal/domain/search"
	"github.com/Spok95/erp-catalog-bot/internal/domain/users"
	"github.com/Spok95/erp-catalog-bot/internal/infra/metrics"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// texts все тексты, ушедшие новыми сообщениями или правками.
func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeSender) messagesTo(chatID int64, substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ChatID == chatID && strings.Contains(m.Text, substr) {
			n++
		}
	}
	return n
}

func (f *fakeSender) alerts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok && cb.ShowAlert {
			out = append(out, cb.Text)
		}
	}
	return out
}

type fakeUsers struct {
	byID   map[int64]*users.User
	admins []users.User
}

func (f *fakeUsers) GetByTelegramID(_ context.Context, id int64) (*users.User, error) {
	return f.byID[id], nil
}

func (f *fakeUsers) UpsertFromTelegram(_ context.Context, tg users.Telegram, role users.Role) (*users.User, error) {
	if f.byID == nil {
		f.byID = map[int64]*users.User{}
	}
	u, ok := f.byID[tg.ID]
	if !ok {
		u = &users.User{TelegramID: tg.ID, Role: role}
		f.byID[tg.ID] = u
	}
	u.FirstName = tg.FirstName
	return u, nil
}

func (f *fakeUsers) ListByRole(_ context.Context, role users.Role) ([]users.User, error) {
	if role != users.RoleAdmin {
		return nil, nil
	}
	return f.admins, nil
}

func (f *fakeUsers) SetRole(_ context.Context, tgID int64, role users.Role) (*users.User, error) {
	u, ok := f.byID[tgID]
	if !ok {
		return nil, nil
	}
	u.Role = role
	return u, nil
}

type fakeDialogs struct {
	mu    sync.Mutex
	items map[int64]*dialog.Item
}

func (f *fakeDialogs) Get(_ context.Context, chatID int64) (*dialog.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if it, ok := f.items[chatID]; ok {
		return it, nil
	}
	return &dialog.Item{ChatID: chatID, State: dialog.StateIdle, Payload: dialog.Payload{}}, nil
}

func (f *fakeDialogs) Set(_ context.Context, chatID int64, st dialog.State, p dialog.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items == nil {
		f.items = map[int64]*dialog.Item{}
	}
	f.items[chatID] = &dialog.Item{ChatID: chatID, State: st, Payload: p}
	return nil
}

func (f *fakeDialogs) Reset(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, chatID)
	return nil
}

type fakePrefs struct {
	mu    sync.Mutex
	fail  error
	calls int

	loads     int
	failLoads int // столько первых чтений завершатся ошибкой
	snap      preferences.Snapshot
}

func (f *fakePrefs) Load(context.Context, string, string) (preferences.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.failLoads > 0 {
		f.failLoads--
		return preferences.Snapshot{}, errors.New("store down")
	}
	return f.snap, nil
}

func (f *fakePrefs) PatchGroup(context.Context, string, preferences.GroupPatch) error {
	return f.hit()
}

func (f *fakePrefs) PatchMaterial(context.Context, string, preferences.MaterialPatch) error {
	return f.hit()
}

func (f *fakePrefs) ReplaceExclusions(context.Context, string, string, []string) error {
	return f.hit()
}

func (f *fakePrefs) hit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.fail
}

func (f *fakePrefs) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

type fakePoints struct {
	points []reorder.Point
	saved  int
	err    error
}

func (f *fakePoints) List(context.Context) ([]reorder.Point, error) { return f.points, f.err }

func (f *fakePoints) Upsert(_ context.Context, p reorder.Point) (reorder.Point, error) {
	if f.err != nil {
		return reorder.Point{}, f.err
	}
	if p.ID == "" {
		p.ID = "p-new"
	}
	f.saved++
	f.points = append(f.points, p)
	return p, nil
}

func (f *fakePoints) Delete(_ context.Context, id string) error {
	for i, p := range f.points {
		if p.ID == id {
			f.points = append(f.points[:i], f.points[i+1:]...)
			break
		}
	}
	return nil
}

type fakeSource struct {
	roots []*catalog.Node
	whs   []catalog.Warehouse
	err   error
}

func (f *fakeSource) FetchCatalog(context.Context) ([]*catalog.Node, error) { return f.roots, f.err }

func (f *fakeSource) FetchWarehouses(context.Context) ([]catalog.Warehouse, error) {
	return f.whs, nil
}

type manualClock struct {
	mu      sync.Mutex
	pending []func()
}

type manualTimer struct{}

func (manualTimer) Stop() bool { return true }

func (c *manualClock) AfterFunc(_ time.Duration, f func()) search.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, f)
	return manualTimer{}
}

func (c *manualClock) FireAll() {
	c.mu.Lock()
	fs := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, f := range fs {
		f()
	}
}

type harness struct {
	bot     *Bot
	api     *fakeSender
	users   *fakeUsers
	dialogs *fakeDialogs
	prefs   *fakePrefs
	points  *fakePoints
	source  *fakeSource
	clock   *manualClock
}

const adminID = 100

func sampleRoots() []*catalog.Node {
	return []*catalog.Node{
		catalog.NewGroup("G", "Крепёж",
			catalog.NewMaterial("B1", "Болт М8", "pcs", catalog.Qty("Основной", 40)),
			catalog.NewGroup("GN", "Гайки",
				catalog.NewMaterial("N1", "Гайка М8", "pcs", catalog.Qty("Основной", 3), catalog.Qty("Цех", 2)),
			),
		),
		catalog.NewGroup("A", "Архив",
			catalog.NewMaterial("OLD", "Болт старый", "pcs"),
		),
	}
}

func sampleWarehouses() []catalog.Warehouse {
	return []catalog.Warehouse{{Code: "W1", Name: "Основной"}, {Code: "W2", Name: "Цех"}}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		api:     &fakeSender{},
		users:   &fakeUsers{byID: map[int64]*users.User{}},
		dialogs: &fakeDialogs{},
		prefs:   &fakePrefs{},
		points:  &fakePoints{},
		source:  &fakeSource{roots: sampleRoots(), whs: sampleWarehouses()},
		clock:   &manualClock{},
	}
	h.bot = New(Deps{
		API:       h.api,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Users:     h.users,
		States:    h.dialogs,
		Prefs:     h.prefs,
		Reorder:   h.points,
		Source:    h.source,
		Metrics:   metrics.New(nil),
		AdminChat: adminID,
		Search:    search.Policy{MinLength: 3},
		Clock:     h.clock,
	})
	return h
}

// load кладёт дерево как принятый ответ на последний запрос.
func (h *harness) load(roots []*catalog.Node) {
	gen := h.bot.loader.Begin()
	h.bot.handleEvent(context.Background(), catalogLoaded{gen: gen, snap: catalog.Snapshot{
		Tree:     catalog.NewTree(roots),
		Registry: catalog.NewRegistry(sampleWarehouses()),
	}})
}

func (h *harness) user(id int64, role users.Role) *users.User {
	u := &users.User{TelegramID: id, Role: role}
	h.users.byID[id] = u
	return u
}

func (h *harness) click(chatID int64, data string) {
	h.bot.onCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: chatID},
		Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	})
}

func (h *harness) text(chatID int64, text string) {
	h.bot.onMessage(context.Background(), &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: chatID},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
	})
}

// command сообщение с командой; без entity Telegram-клиент не считает текст командой.
func (h *harness) command(chatID int64, text string) {
	name := strings.SplitN(text, " ", 2)[0]
	h.bot.onMessage(context.Background(), &tgbotapi.Message{
		MessageID: 3,
		From:      &tgbotapi.User{ID: chatID},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	})
}

// next ждёт событие из фоновой горутины.
func (h *harness) next(t *testing.T) event {
	t.Helper()
	select {
	case ev := <-h.bot.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return nil
	}
}
