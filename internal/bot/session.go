package bot

import (
	"context"
	"time"

	"github.com/Spok95/erp-catalog-bot/internal/dialog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/navigation"
	"github.com/Spok95/erp-catalog-bot/internal/domain/preferences"
	"github.com/Spok95/erp-catalog-bot/internal/domain/reorder"
	"github.com/Spok95/erp-catalog-bot/internal/domain/users"
	"github.com/shopspring/decimal"
)

// chatSession всё, что бот держит в памяти про один чат.
type chatSession struct {
	chatID int64
	user   *users.User
	state  dialog.State

	nav       *navigation.Session
	prefs     *preferences.Overlay
	prefsErr  error
	msgID     int
	items     []*catalog.Node // что сейчас на кнопках, callback несёт индекс
	page      int
	card      string // код открытой карточки материала
	retry     *preferences.Write
	exclDraft map[string]bool

	// prefsLoaded хоть одно чтение удалось; writes число записей в полёте
	prefsLoaded bool
	writes      int

	editor    reorder.Editor
	picker    navigation.State
	pickQuery string
	pickItems []*catalog.Node
	points    []reorder.Status
	pointIdx  int
}

// события из фоновых горутин
type event any

type catalogLoaded struct {
	gen    uint64
	chatID int64 // кто попросил обновление; 0 — по таймеру
	snap   catalog.Snapshot
	err    error
}

type querySettled struct {
	chatID int64
	query  string
}

type prefWritten struct {
	chatID int64
	w      preferences.Write
	err    error
}

// session достаёт или поднимает сессию чата: настройки из хранилища,
// путь и черновик точки заказа из состояния диалога.
func (b *Bot) session(ctx context.Context, chatID int64, u *users.User) *chatSession {
	if s, ok := b.sessions[chatID]; ok {
		if u != nil {
			s.user = u
		}
		return s
	}
	s := &chatSession{chatID: chatID, user: u, state: dialog.StateIdle, pointIdx: -1}
	// очистка запроса зовёт onSettle прямо из Input, то есть из цикла Run
	s.nav = navigation.NewSession(b.policy, b.debounce, b.clock, func(q string) {
		go b.post(querySettled{chatID: chatID, query: q})
	})

	key := ""
	if u != nil {
		key = u.PrefKey()
	}
	s.prefs = preferences.NewOverlay(key, b.section)

	if st, err := b.states.Get(ctx, chatID); err != nil {
		b.log.Warn("dialog state read failed", "err", err, "chat_id", chatID)
	} else if st != nil {
		s.state = st.State
		if codes := dialog.GetStrings(st.Payload, "path"); len(codes) > 0 {
			if t := b.tree(); t != nil {
				s.nav.Restore(t.Roots, codes)
			}
		}
		if s.state.Editing() {
			restoreDraft(&s.editor, st.Payload)
		}
		if !s.editor.Editing() && s.state.Editing() {
			s.state = dialog.StateIdle
		}
	}
	b.sessions[chatID] = s
	return s
}

// loadPrefs пакетное чтение настроек при открытии экрана. Пока есть записи
// в полёте, уже загруженное состояние не перечитываем: ответ хранилища
// может их не содержать.
func (b *Bot) loadPrefs(ctx context.Context, s *chatSession) {
	if b.prefs == nil || s.prefs.User() == "" {
		return
	}
	if s.prefsLoaded && s.writes > 0 {
		return
	}
	lctx, cancel := withTimeout(ctx)
	defer cancel()
	if err := s.prefs.Load(lctx, b.prefs); err != nil {
		b.log.Warn("preferences load failed", "err", err, "chat_id", s.chatID)
		s.prefsErr = err
		return
	}
	s.prefsErr = nil
	s.prefsLoaded = true
}

// setState фиксирует состояние диалога вместе с путём и черновиком формы.
func (b *Bot) setState(ctx context.Context, s *chatSession, st dialog.State) {
	s.state = st
	payload := dialog.Payload{"path": s.nav.Codes()}
	if s.editor.Editing() {
		saveDraft(payload, &s.editor)
	}
	if err := b.states.Set(ctx, s.chatID, st, payload); err != nil {
		b.log.Error("dialog state write failed", "err", err, "chat_id", s.chatID)
	}
}

func saveDraft(p dialog.Payload, e *reorder.Editor) {
	d := e.Draft()
	p["mode"] = float64(e.Mode())
	p["id"] = d.ID
	p["name"] = d.ItemName
	p["unit"] = d.Unit
	p["qty"] = d.ReorderQuantity.String()
	p["items"] = d.ItemCodes
	p["whs"] = d.WarehouseCodes
}

func restoreDraft(e *reorder.Editor, p dialog.Payload) {
	mode, ok := dialog.GetInt(p, "mode")
	if !ok || reorder.Mode(mode) == reorder.ModeClosed {
		return
	}
	d := reorder.Point{
		ItemCodes:      dialog.GetStrings(p, "items"),
		WarehouseCodes: dialog.GetStrings(p, "whs"),
	}
	d.ID, _ = dialog.GetString(p, "id")
	d.ItemName, _ = dialog.GetString(p, "name")
	d.Unit, _ = dialog.GetString(p, "unit")
	if q, ok := dialog.GetString(p, "qty"); ok {
		d.ReorderQuantity, _ = decimal.NewFromString(q)
	}
	d.IsGroup = len(d.ItemCodes) > 1
	e.Restore(reorder.Mode(mode), d)
}

// refreshCatalog запускает загрузку в фоне; ответ придёт событием catalogLoaded.
func (b *Bot) refreshCatalog(ctx context.Context, chatID int64) {
	if b.source == nil {
		return
	}
	gen := b.loader.Begin()
	go func() {
		lctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		snap, err := catalog.Load(lctx, b.source)
		b.post(catalogLoaded{gen: gen, chatID: chatID, snap: snap, err: err})
	}()
}

func (b *Bot) handleEvent(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case catalogLoaded:
		b.onCatalogLoaded(ctx, e)
	case querySettled:
		s, ok := b.sessions[e.chatID]
		if !ok || s.state != dialog.StateBrowse {
			return
		}
		// таймер мог сработать уже после новой правки
		if s.nav.EffectiveQuery() != e.query {
			return
		}
		s.page = 0
		b.renderCatalog(s)
	case prefWritten:
		b.onPrefWritten(e)
	}
}

func (b *Bot) onCatalogLoaded(ctx context.Context, e catalogLoaded) {
	if !b.loader.Accept(e.gen) {
		b.metrics.Stale()
		b.log.Debug("stale catalog response dropped", "gen", e.gen, "latest", b.loader.Latest())
		return
	}
	if e.err != nil {
		b.metrics.FetchError()
		b.log.Error("catalog load failed", "err", e.err)
		if e.chatID != 0 {
			msg := "⚠️ Не удалось обновить каталог."
			if b.current() != nil {
				msg += " Показываю данные прошлой загрузки."
			}
			b.notify(e.chatID, msg)
		}
		return
	}

	snap := &snapshot{tree: e.snap.Tree, registry: e.snap.Registry, loadedAt: time.Now()}
	b.snap.Store(snap)
	b.whOpts = catalog.Accumulate(b.whOpts, snap.tree.Rows, catalog.ByWarehouse)
	b.unitOpts = catalog.Accumulate(b.unitOpts, snap.tree.Rows, catalog.ByUnit)
	b.metrics.FetchOK()
	b.metrics.Leaves(snap.tree.Leaves())
	b.log.Info("catalog loaded", "leaves", snap.tree.Leaves(), "warehouses", snap.registry.Len())

	// пути держат узлы старого дерева, переносим их на новое
	for _, s := range b.sessions {
		s.nav.Restore(snap.tree.Roots, s.nav.Codes())
		s.picker.Restore(snap.tree.Roots, s.picker.Codes())
	}
	if s, ok := b.sessions[e.chatID]; ok && s.state == dialog.StateBrowse {
		b.renderCatalog(s)
	}

	b.checkReorder(ctx)
}
