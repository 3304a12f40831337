package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Queryer: общее у *sql.DB и *sql.Tx; калькулятор работает с любым из них.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Пространства ключей для pg_advisory_xact_lock(int4, int4).
const (
	lockSpaceSeason int32 = 1
	lockSpaceUser   int32 = 2
)

// withTx: одна транзакция на одну публичную операцию хранилища.
func withTx(ctx context.Context, database *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := database.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// lockSeasonExclusive: полный пересчёт сезона. Ждёт, пока закончатся все
// точечные пересчёты в этом сезоне, и не пускает новые.
func lockSeasonExclusive(ctx context.Context, tx *sql.Tx, seasonID int64) error {
	_, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock($1::int4, hashtext($2::bigint::text))`, lockSpaceSeason, seasonID)
	return err
}

// lockUser: точечный пересчёт одного участника. Сезон берётся в shared-режиме,
// порядок захвата всегда сезон → участник.
func lockUser(ctx context.Context, tx *sql.Tx, seasonID, userID int64) error {
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock_shared($1::int4, hashtext($2::bigint::text))`, lockSpaceSeason, seasonID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock($1::int4, hashtext($2::bigint::text))`, lockSpaceUser, userID)
	return err
}

// IsUniqueViolation распознаёт 23505 от обоих драйверов (pgx в проде, lib/pq в тестах).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
