package reorder

import (
	"context"
	"errors"
	"testing"

	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	points []Point
	err    error
}

func (s *staticLister) List(context.Context) ([]Point, error) { return s.points, s.err }

func ids(st []Status) []string {
	out := make([]string, 0, len(st))
	for _, s := range st {
		out = append(out, s.Point.ID)
	}
	return out
}

func TestWatcherIsEdgeTriggered(t *testing.T) {
	ctx := context.Background()
	tree, reg := scenario()
	lister := &staticLister{points: []Point{
		{ID: "low", ItemCodes: []string{"002"}, ReorderQuantity: dec("5")},
		{ID: "ok", ItemCodes: []string{"001"}, ReorderQuantity: dec("5")},
	}}
	w := NewWatcher(lister)
	var gauge []int
	w.OnCount = func(n int) { gauge = append(gauge, n) }

	_, fresh, err := w.Check(ctx, tree, reg)
	require.NoError(t, err)
	assert.Empty(t, fresh, "first pass only primes the watcher")

	lister.points = append(lister.points, Point{ID: "new", ItemCodes: []string{"001"}, ReorderQuantity: dec("100")})
	report, fresh, err := w.Check(ctx, tree, reg)
	require.NoError(t, err)
	assert.Len(t, report, 3)
	assert.Equal(t, []string{"new"}, ids(fresh))

	_, fresh, err = w.Check(ctx, tree, reg)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	// восстановление остатка и повторный дефицит — снова уведомление
	healthy := catalog.NewTree([]*catalog.Node{
		catalog.NewMaterial("001", "Лист", "kg", catalog.Qty("Warehouse A", 500)),
		catalog.NewMaterial("002", "Пруток", "kg", catalog.Qty("Warehouse A", 500)),
	})
	_, _, err = w.Check(ctx, healthy, reg)
	require.NoError(t, err)
	_, fresh, err = w.Check(ctx, tree, reg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"low", "new"}, ids(fresh))

	assert.Equal(t, []int{1, 2, 2, 0, 2}, gauge)
}

func TestWatcherForget(t *testing.T) {
	ctx := context.Background()
	tree, reg := scenario()
	lister := &staticLister{points: []Point{{ID: "low", ItemCodes: []string{"002"}, ReorderQuantity: dec("5")}}}
	w := NewWatcher(lister)
	_, _, _ = w.Check(ctx, tree, reg)

	w.Forget("low")
	_, fresh, err := w.Check(ctx, tree, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"low"}, ids(fresh))
}

func TestWatcherListFailure(t *testing.T) {
	w := NewWatcher(&staticLister{err: errors.New("db down")})
	_, _, err := w.Check(context.Background(), nil, nil)
	assert.Error(t, err)
}
