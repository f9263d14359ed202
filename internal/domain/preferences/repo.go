package preferences

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo настройки в Postgres. user — telegram id строкой.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// Load три выборки одним пакетом (один round-trip).
func (r *Repo) Load(ctx context.Context, user, section string) (Snapshot, error) {
	s := Snapshot{
		Groups:    map[string]GroupPreference{},
		Materials: map[string]MaterialPreference{},
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		SELECT group_code, is_favorite, is_hidden
		FROM group_prefs WHERE user_key = $1 AND section = $2
	`, user, section).Query(func(rows pgx.Rows) error {
		for rows.Next() {
			var code string
			var p GroupPreference
			if err := rows.Scan(&code, &p.Favorite, &p.Hidden); err != nil {
				return err
			}
			s.Groups[code] = p
		}
		return rows.Err()
	})
	batch.Queue(`
		SELECT material_code, is_favorite
		FROM material_prefs WHERE user_key = $1 AND section = $2
	`, user, section).Query(func(rows pgx.Rows) error {
		for rows.Next() {
			var code string
			var p MaterialPreference
			if err := rows.Scan(&code, &p.Favorite); err != nil {
				return err
			}
			s.Materials[code] = p
		}
		return rows.Err()
	})
	batch.Queue(`
		SELECT group_code FROM search_exclusions
		WHERE user_key = $1 AND section = $2
		ORDER BY group_code
	`, user, section).Query(func(rows pgx.Rows) error {
		for rows.Next() {
			var code string
			if err := rows.Scan(&code); err != nil {
				return err
			}
			s.SearchExclusions = append(s.SearchExclusions, code)
		}
		return rows.Err()
	})

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: load: %w", ErrFetch, err)
	}
	return s, nil
}

// PatchGroup частичное обновление: nil-поля не трогаем.
func (r *Repo) PatchGroup(ctx context.Context, user string, p GroupPatch) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO group_prefs (user_key, section, group_code, is_favorite, is_hidden)
		VALUES ($1, $2, $3, COALESCE($4, false), COALESCE($5, false))
		ON CONFLICT (user_key, section, group_code)
		DO UPDATE SET
			is_favorite = COALESCE($4, group_prefs.is_favorite),
			is_hidden   = COALESCE($5, group_prefs.is_hidden),
			updated_at  = now()
	`, user, sectionOr(p.Section), p.GroupCode, p.Favorite, p.Hidden)
	return err
}

func (r *Repo) PatchMaterial(ctx context.Context, user string, p MaterialPatch) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO material_prefs (user_key, section, material_code, is_favorite)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_key, section, material_code)
		DO UPDATE SET is_favorite = EXCLUDED.is_favorite, updated_at = now()
	`, user, sectionOr(p.Section), p.MaterialCode, p.Favorite)
	return err
}

// ReplaceExclusions удаляет старый набор и пишет новый в одной транзакции.
func (r *Repo) ReplaceExclusions(ctx context.Context, user, section string, codes []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	section = sectionOr(section)
	if _, err := tx.Exec(ctx, `DELETE FROM search_exclusions WHERE user_key = $1 AND section = $2`, user, section); err != nil {
		return err
	}
	if len(codes) > 0 {
		rows := make([][]any, 0, len(codes))
		for _, c := range codes {
			rows = append(rows, []any{user, section, c})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"search_exclusions"},
			[]string{"user_key", "section", "group_code"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func sectionOr(s string) string {
	if s == "" {
		return DefaultSection
	}
	return s
}
