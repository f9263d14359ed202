package catalog

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Source внешняя учётная система (ERP), из которой каждый раз читаем свежие данные.
type Source interface {
	FetchCatalog(ctx context.Context) ([]*Node, error)
	FetchWarehouses(ctx context.Context) ([]Warehouse, error)
}

type Snapshot struct {
	Tree     *Tree
	Registry *Registry
}

// Load тянет дерево и справочник складов параллельно.
func Load(ctx context.Context, src Source) (Snapshot, error) {
	var (
		roots []*Node
		whs   []Warehouse
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		roots, err = src.FetchCatalog(ctx)
		if err != nil {
			return fmt.Errorf("fetch catalog: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		whs, err = src.FetchWarehouses(ctx)
		if err != nil {
			return fmt.Errorf("fetch warehouses: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Tree: NewTree(roots), Registry: NewRegistry(whs)}, nil
}

// Loader выдаёт номера запросов; принимается только ответ на последний выданный,
// чтобы медленный устаревший ответ не затёр более свежее дерево.
type Loader struct {
	latest atomic.Uint64
}

func (l *Loader) Begin() uint64 { return l.latest.Add(1) }

func (l *Loader) Accept(gen uint64) bool { return gen == l.latest.Load() }

func (l *Loader) Latest() uint64 { return l.latest.Load() }
