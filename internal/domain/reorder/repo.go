package reorder

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const pointColumns = `id::text, item_name, reorder_quantity::text, unit, is_group, item_codes, warehouse_codes, updated_at`

func scanPoint(row pgx.Row) (Point, error) {
	var p Point
	var qty string
	if err := row.Scan(&p.ID, &p.ItemName, &qty, &p.Unit, &p.IsGroup, &p.ItemCodes, &p.WarehouseCodes, &p.UpdatedAt); err != nil {
		return Point{}, err
	}
	d, err := decimal.NewFromString(qty)
	if err != nil {
		return Point{}, fmt.Errorf("reorder point %s: quantity %q: %w", p.ID, qty, err)
	}
	p.ReorderQuantity = d
	return p, nil
}

func (r *Repo) List(ctx context.Context) ([]Point, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pointColumns+` FROM reorder_points ORDER BY item_name, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrFetch, err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrFetch, err)
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Point, error) {
	p, err := scanPoint(r.pool.QueryRow(ctx, `SELECT `+pointColumns+` FROM reorder_points WHERE id::text = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get: %w", ErrFetch, err)
	}
	return &p, nil
}

// Upsert без ID — создание с новым uuid, с ID — обновление (или вставка с этим ID).
func (r *Repo) Upsert(ctx context.Context, p Point) (Point, error) {
	p = p.Normalize()
	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if _, err := uuid.Parse(p.ID); err != nil {
		return Point{}, fmt.Errorf("reorder point id %q: %w", p.ID, err)
	}
	if p.ItemCodes == nil {
		p.ItemCodes = []string{}
	}
	if p.WarehouseCodes == nil {
		p.WarehouseCodes = []string{}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO reorder_points (id, item_name, reorder_quantity, unit, is_group, item_codes, warehouse_codes)
		VALUES ($1::uuid, $2, $3::numeric, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			item_name        = EXCLUDED.item_name,
			reorder_quantity = EXCLUDED.reorder_quantity,
			unit             = EXCLUDED.unit,
			is_group         = EXCLUDED.is_group,
			item_codes       = EXCLUDED.item_codes,
			warehouse_codes  = EXCLUDED.warehouse_codes,
			updated_at       = now()
		RETURNING `+pointColumns,
		p.ID, p.ItemName, p.ReorderQuantity.String(), p.Unit, p.IsGroup, p.ItemCodes, p.WarehouseCodes)

	saved, err := scanPoint(row)
	if err != nil {
		return Point{}, fmt.Errorf("%w: upsert: %w", ErrFetch, err)
	}
	return saved, nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM reorder_points WHERE id::text = $1`, id); err != nil {
		return fmt.Errorf("%w: delete: %w", ErrFetch, err)
	}
	return nil
}
