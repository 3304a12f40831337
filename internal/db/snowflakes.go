package db

import (
	"context"
	"database/sql"

	"github.com/kenku-bot/crowevents/internal/ctxutil"
	"github.com/kenku-bot/crowevents/internal/models"
	"github.com/lib/pq"
)

// UpdateSnowflake: last-write-wins для имени пользователя или канала.
func UpdateSnowflake(ctx context.Context, database *sql.DB, id int64, name string) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	_, err := database.ExecContext(ctx, `
		INSERT INTO snowflakes (id, name, cached_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, cached_at = EXCLUDED.cached_at
	`, id, name)
	return err
}

// UpdateSnowflakes: пачечный вариант UpdateSnowflake. При повторе id
// в пачке выигрывает последнее имя.
func UpdateSnowflakes(ctx context.Context, database *sql.DB, names map[int64]string) error {
	if len(names) == 0 {
		return nil
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	ids := make([]int64, 0, len(names))
	vals := make([]string, 0, len(names))
	for id, n := range names {
		ids = append(ids, id)
		vals = append(vals, n)
	}
	_, err := database.ExecContext(ctx, `
		INSERT INTO snowflakes (id, name, cached_at)
		SELECT t.id, t.name, now()
		FROM unnest($1::bigint[], $2::text[]) AS t(id, name)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, cached_at = EXCLUDED.cached_at
	`, pq.Array(ids), pq.Array(vals))
	return err
}

// GetSnowflake: запись кэша; nil, если имени нет.
func GetSnowflake(ctx context.Context, database *sql.DB, id int64) (*models.Snowflake, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var s models.Snowflake
	var name sql.NullString
	err := database.QueryRowContext(ctx, `
		SELECT id, name, cached_at FROM snowflakes WHERE id = $1
	`, id).Scan(&s.ID, &name, &s.CachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Name = name.String
	return &s, nil
}

// FindSnowflakesByName: id с данным именем, свежие записи первыми.
func FindSnowflakesByName(ctx context.Context, database *sql.DB, name string) ([]int64, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := database.QueryContext(ctx, `
		SELECT id FROM snowflakes WHERE name = $1 ORDER BY cached_at DESC, id
	`, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetSnowflakeNames: имена для набора id; отсутствующих в кэше нет в ответе.
func GetSnowflakeNames(ctx context.Context, database *sql.DB, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := database.QueryContext(ctx, `
		SELECT id, name FROM snowflakes WHERE id = ANY($1::bigint[]) AND name IS NOT NULL
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}
