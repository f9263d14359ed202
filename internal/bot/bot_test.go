package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Spok95/erp-catalog-bot/internal/dialog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/Spok95/erp-catalog-bot/internal/domain/preferences"
	"github.com/Spok95/erp-catalog-bot/internal/domain/reorder"
	"github.com/Spok95/erp-catalog-bot/internal/domain/users"
	httpapi "github.com/Spok95/erp-catalog-bot/internal/infra/http"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexOf(t *testing.T, items []*catalog.Node, code string) int {
	t.Helper()
	for i, n := range items {
		if n.Code == code {
			return i
		}
	}
	t.Fatalf("%s not in list", code)
	return -1
}

func codes(items []*catalog.Node) []string {
	out := make([]string, 0, len(items))
	for _, n := range items {
		out = append(out, n.Code)
	}
	return out
}

func TestStaleCatalogResponseIsDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.bot.loader.Begin()
	second := h.bot.loader.Begin()

	h.bot.handleEvent(ctx, catalogLoaded{gen: first, snap: catalog.Snapshot{Tree: catalog.NewTree(sampleRoots())}})
	assert.Nil(t, h.bot.current())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.bot.metrics.CatalogStale))

	h.bot.handleEvent(ctx, catalogLoaded{gen: second, snap: catalog.Snapshot{
		Tree:     catalog.NewTree(sampleRoots()),
		Registry: catalog.NewRegistry(sampleWarehouses()),
	}})
	require.NotNil(t, h.bot.current())
	assert.Equal(t, 3, h.bot.tree().Leaves())
	assert.Equal(t, 3.0, testutil.ToFloat64(h.bot.metrics.CatalogLeaves))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.bot.metrics.CatalogFetch.WithLabelValues("ok")))
	assert.True(t, h.bot.whOpts.Has("Цех"))
}

func TestRefreshFailureKeepsPreviousTree(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.load(sampleRoots())

	h.source.err = errors.New("erp timeout")
	h.bot.refreshCatalog(ctx, 5)
	h.bot.handleEvent(ctx, h.next(t))

	require.NotNil(t, h.bot.tree(), "failed refresh keeps the last accepted tree")
	assert.Equal(t, 1, h.api.messagesTo(5, "Не удалось обновить каталог"))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.bot.metrics.CatalogFetch.WithLabelValues("error")))
}

func TestRefreshLoadsFromSource(t *testing.T) {
	h := newHarness(t)
	h.bot.refreshCatalog(context.Background(), 0)
	h.bot.handleEvent(context.Background(), h.next(t))
	require.NotNil(t, h.bot.current())
	assert.Equal(t, 2, h.bot.registry().Len())
}

func TestReorderReportBeforeFirstLoad(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.bot.ReorderReport(context.Background())
	assert.ErrorIs(t, err, httpapi.ErrNoCatalog)

	h.points.points = []reorder.Point{{ID: "p", ItemCodes: []string{"N1"}, ReorderQuantity: decimal.NewFromInt(10)}}
	h.load(sampleRoots())
	rep, at, err := h.bot.ReorderReport(context.Background())
	require.NoError(t, err)
	assert.False(t, at.IsZero())
	require.Len(t, rep, 1)
	assert.True(t, rep[0].Triggered())
}

func TestSearchSettlesThroughEventLoop(t *testing.T) {
	h := newHarness(t)
	h.user(1, users.RoleViewer)
	h.load(sampleRoots())

	h.text(1, "Каталог")
	s := h.bot.sessions[1]
	require.Equal(t, dialog.StateBrowse, s.state)

	h.text(1, "болт")
	assert.True(t, s.nav.Pending())
	h.clock.FireAll()
	h.bot.handleEvent(context.Background(), h.next(t))

	assert.Equal(t, []string{"B1", "OLD"}, codes(s.items), "in-stock first")
	assert.Contains(t, h.api.texts()[len(h.api.texts())-1], "Результаты поиска")
}

func TestPreferenceFailureRollsBackAndOffersRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(1, users.RoleViewer)
	h.load(sampleRoots())

	h.text(1, "Каталог")
	s := h.bot.sessions[1]
	h.click(1, fmt.Sprintf("cv:o:%d", indexOf(t, s.items, "G")))
	require.Equal(t, "G", s.nav.Current().Code)

	h.prefs.setFail(errors.New("db down"))
	h.click(1, "pf:gf")
	assert.True(t, s.prefs.IsFavoriteGroup("G"), "applied before the store answers")

	h.bot.handleEvent(ctx, h.next(t))
	assert.False(t, s.prefs.IsFavoriteGroup("G"), "rolled back")
	require.NotNil(t, s.retry)
	assert.Equal(t, 1, h.api.messagesTo(1, "Не удалось сохранить настройку"))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.bot.metrics.PreferenceWrites.WithLabelValues("rolled_back")))

	h.prefs.setFail(nil)
	h.click(1, "pf:retry")
	assert.True(t, s.prefs.IsFavoriteGroup("G"))
	h.bot.handleEvent(ctx, h.next(t))
	assert.True(t, s.prefs.IsFavoriteGroup("G"))
	assert.Nil(t, s.retry)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.bot.metrics.PreferenceWrites.WithLabelValues("ok")))
}

func TestHiddenGroupCannotBeFavorited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(1, users.RoleViewer)
	h.load(sampleRoots())

	h.text(1, "Каталог")
	s := h.bot.sessions[1]
	h.click(1, fmt.Sprintf("cv:o:%d", indexOf(t, s.items, "G")))
	h.click(1, "pf:gh")
	h.bot.handleEvent(ctx, h.next(t))
	assert.True(t, s.prefs.IsHiddenGroup("G"))
	assert.Nil(t, s.nav.Current(), "leaves the group it just hid")
	assert.NotContains(t, codes(s.items), "G")

	h.click(1, "cv:th")
	h.click(1, fmt.Sprintf("cv:o:%d", indexOf(t, s.items, "G")))
	h.click(1, "pf:gf")
	assert.False(t, s.prefs.IsFavoriteGroup("G"))
	require.NotEmpty(t, h.api.alerts())
	assert.Contains(t, h.api.alerts()[0], "Скрытую группу")
	assert.Equal(t, 1, h.prefs.calls, "rejected toggle never reaches the store")
}

func TestReorderEditorFlow(t *testing.T) {
	h := newHarness(t)
	h.user(adminID, users.RoleAdmin)
	h.load(sampleRoots())

	h.click(adminID, "ro:new")
	s := h.bot.sessions[adminID]
	require.True(t, s.editor.Editing())
	require.Equal(t, dialog.StateReorderPick, s.state)

	h.click(adminID, fmt.Sprintf("re:o:%d", indexOf(t, s.pickItems, "G")))
	require.Equal(t, "G", s.picker.Current().Code)
	h.click(adminID, "re:all")
	assert.Equal(t, []string{"B1", "N1"}, s.editor.Draft().ItemCodes)

	h.click(adminID, "re:hub")
	h.text(adminID, "2,5")
	h.click(adminID, "re:save")
	assert.Zero(t, h.points.saved, "missing warehouse blocks the save")
	assert.True(t, s.editor.Editing())

	h.click(adminID, "re:wh")
	h.click(adminID, "re:w:0")
	h.click(adminID, "re:hub")
	h.click(adminID, "re:save")

	require.Equal(t, 1, h.points.saved)
	p := h.points.points[0]
	assert.Equal(t, "Крепёж", p.ItemName)
	assert.Equal(t, []string{"W1"}, p.WarehouseCodes)
	assert.True(t, decimal.RequireFromString("2.5").Equal(p.ReorderQuantity))
	assert.False(t, s.editor.Editing())
	assert.Equal(t, dialog.StateReorderList, h.dialogs.items[adminID].State)
}

func TestReorderDraftSurvivesRestart(t *testing.T) {
	h := newHarness(t)
	admin := h.user(adminID, users.RoleAdmin)
	h.load(sampleRoots())

	h.click(adminID, "ro:new")
	s := h.bot.sessions[adminID]
	h.click(adminID, fmt.Sprintf("re:o:%d", indexOf(t, s.pickItems, "G")))
	h.click(adminID, "re:all")

	delete(h.bot.sessions, adminID)
	restored := h.bot.session(context.Background(), adminID, admin)
	assert.Equal(t, dialog.StateReorderPick, restored.state)
	assert.Equal(t, reorder.ModeNew, restored.editor.Mode())
	assert.Equal(t, []string{"B1", "N1"}, restored.editor.Draft().ItemCodes)
	assert.Equal(t, "Крепёж", restored.editor.Draft().ItemName)
}

func TestViewerCannotEditReorderPoints(t *testing.T) {
	h := newHarness(t)
	h.user(1, users.RoleViewer)
	h.load(sampleRoots())
	h.click(1, "ro:new")
	assert.False(t, h.bot.sessions[1].editor.Editing())
	assert.Contains(t, h.api.alerts(), "Доступ запрещён")
}

func TestTriggeredPointsNotifyAdminsOnce(t *testing.T) {
	h := newHarness(t)
	h.users.admins = []users.User{{TelegramID: adminID}, {TelegramID: 200}}
	h.points.points = []reorder.Point{{ID: "p", ItemCodes: []string{"N1"}, ReorderQuantity: decimal.NewFromInt(10)}}

	healthy := []*catalog.Node{
		catalog.NewGroup("G", "Крепёж",
			catalog.NewMaterial("N1", "Гайка М8", "pcs", catalog.Qty("Основной", 50)),
		),
	}
	h.load(sampleRoots())
	assert.Zero(t, h.api.messagesTo(adminID, "Пора заказать"), "first check only primes")

	h.load(healthy)
	h.load(sampleRoots())
	assert.Equal(t, 1, h.api.messagesTo(adminID, "Пора заказать"))
	assert.Equal(t, 1, h.api.messagesTo(200, "Пора заказать"))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.bot.metrics.ReorderTriggered))

	h.load(sampleRoots())
	assert.Equal(t, 1, h.api.messagesTo(adminID, "Пора заказать"), "still firing, no repeat")
}

func TestExclusionsScreenSavesTopLevelCodes(t *testing.T) {
	h := newHarness(t)
	h.user(1, users.RoleViewer)
	h.load(sampleRoots())

	h.text(1, "Исключения поиска")
	s := h.bot.sessions[1]
	require.Equal(t, dialog.StateExclusions, s.state)
	h.click(1, fmt.Sprintf("ex:t:%d", indexOf(t, s.items, "A")))
	h.click(1, "ex:save")
	h.bot.handleEvent(context.Background(), h.next(t))

	assert.Equal(t, []string{"A"}, s.prefs.ExclusionList())
	assert.Equal(t, dialog.StateIdle, s.state)
}

func TestRoleCommand(t *testing.T) {
	h := newHarness(t)
	h.user(adminID, users.RoleAdmin)
	viewer := h.user(1, users.RoleViewer)
	h.load(sampleRoots())

	h.command(1, "/role 1 admin")
	assert.Equal(t, users.RoleViewer, viewer.Role, "viewers cannot grant roles")
	assert.Equal(t, 1, h.api.messagesTo(1, "Доступ запрещён"))

	h.command(adminID, "/role 1 admin")
	assert.Equal(t, users.RoleAdmin, viewer.Role)
	h.click(1, "ro:new")
	assert.True(t, h.bot.sessions[1].editor.Editing(), "the open session sees the new role")

	h.command(adminID, "/role 999 admin")
	assert.Equal(t, 1, h.api.messagesTo(adminID, "Пользователь не найден"))
	h.command(adminID, "/role 1 boss")
	assert.Equal(t, 1, h.api.messagesTo(adminID, "Формат:"))
	h.command(adminID, fmt.Sprintf("/role %d viewer", adminID))
	assert.Equal(t, 1, h.api.messagesTo(adminID, "Нельзя снять роль"))
}

func TestPreferencesReloadWhenCatalogOpens(t *testing.T) {
	h := newHarness(t)
	h.user(1, users.RoleViewer)
	h.load(sampleRoots())
	h.prefs.failLoads = 1

	h.text(1, "Каталог")
	s := h.bot.sessions[1]
	require.Error(t, s.prefsErr)
	assert.Contains(t, h.api.texts()[len(h.api.texts())-1], "временно")

	h.prefs.snap = preferences.Snapshot{Groups: map[string]preferences.GroupPreference{"G": {Favorite: true}}}
	h.text(1, "Каталог")
	require.NoError(t, s.prefsErr)
	assert.True(t, s.prefs.IsFavoriteGroup("G"), "changes made elsewhere are picked up")

	h.prefs.snap = preferences.Snapshot{}
	h.text(1, "Каталог")
	assert.False(t, s.prefs.IsFavoriteGroup("G"))
	assert.Equal(t, 3, h.prefs.loads)
}

func TestPreferencesNotReloadedUnderPendingWrite(t *testing.T) {
	h := newHarness(t)
	h.user(1, users.RoleViewer)
	h.load(sampleRoots())

	h.text(1, "Каталог")
	s := h.bot.sessions[1]
	h.click(1, fmt.Sprintf("cv:o:%d", indexOf(t, s.items, "G")))
	h.click(1, "pf:gf")

	h.text(1, "Каталог")
	assert.True(t, s.prefs.IsFavoriteGroup("G"), "in-flight write survives re-entry")
	assert.Equal(t, 1, h.prefs.loads)

	h.bot.handleEvent(context.Background(), h.next(t))
	assert.Zero(t, s.writes)
}

func TestExportReentryDropsStaleWarehouses(t *testing.T) {
	h := newHarness(t)
	h.user(1, users.RoleViewer)
	h.load(sampleRoots())
	require.True(t, h.bot.whOpts.Has("Цех"))

	h.load([]*catalog.Node{
		catalog.NewGroup("G", "Крепёж",
			catalog.NewMaterial("B1", "Болт М8", "kg", catalog.Qty("Основной", 40)),
		),
	})
	assert.True(t, h.bot.whOpts.Has("Цех"), "loads only add options")

	h.text(1, "Выгрузка")
	assert.False(t, h.bot.whOpts.Has("Цех"))
	assert.Equal(t, []string{"Основной"}, h.bot.whOpts.Sorted(h.bot.collator))
	assert.Equal(t, []string{"kg"}, h.bot.unitOpts.Sorted(h.bot.collator))
}
