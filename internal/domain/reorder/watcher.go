package reorder

import (
	"context"
	"sync"

	"github.com/Spok95/erp-catalog-bot/internal/domain/catalog"
)

type Lister interface {
	List(ctx context.Context) ([]Point, error)
}

// Watcher периодическая проверка точек заказа. Уведомляет только о переходе
// точки в сработавшее состояние; после восстановления точка снова «взводится».
type Watcher struct {
	mu      sync.Mutex
	points  Lister
	firing  map[string]struct{}
	primed  bool
	OnCount func(triggered int)
}

func NewWatcher(points Lister) *Watcher {
	return &Watcher{points: points, firing: map[string]struct{}{}}
}

// Check возвращает полный отчёт и только что сработавшие точки.
// Первая проверка после старта ничего не считает новым, чтобы не слать
// повторно всё, что уже было в дефиците до перезапуска.
func (w *Watcher) Check(ctx context.Context, tree *catalog.Tree, reg *catalog.Registry) (report, fresh []Status, err error) {
	points, err := w.points.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	report = Report(points, tree, reg)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := make(map[string]struct{}, len(report))
	for _, st := range report {
		if !st.Triggered() {
			continue
		}
		now[st.Point.ID] = struct{}{}
		if _, was := w.firing[st.Point.ID]; !was && w.primed {
			fresh = append(fresh, st)
		}
	}
	w.firing = now
	w.primed = true

	if w.OnCount != nil {
		w.OnCount(len(now))
	}
	return report, fresh, nil
}

// Forget точку удалили или отредактировали: следующее срабатывание снова новое.
func (w *Watcher) Forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.firing, id)
}
