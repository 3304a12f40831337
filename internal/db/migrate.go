package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	goosedb "github.com/pressly/goose/v3/database"
	"go.uber.org/zap"
)

// VersionTable: таблица со счётчиком версии схемы (формат goose).
const VersionTable = "goose_db_version"

// migrateLockID: ключ session-level advisory lock, чтобы два процесса
// не мигрировали одну базу одновременно.
const migrateLockID int64 = 0x63726f77

type migrationStep struct {
	statements []string
	// выполняется после коммита, вне транзакции (VACUUM в транзакции нельзя)
	after []string
}

// migrations[v] переводит схему с версии v-1 на v.
var migrations = map[int64]migrationStep{
	2: {statements: schemaStatements},
	3: {statements: schemaStatements},
	4: {
		statements: rebuildEventPoints,
		after:      []string{`VACUUM ANALYZE event_points`},
	},
}

// Migrate доводит схему до SchemaVersion. Свежая база (версия 0) сразу
// получает полную схему; иначе шаги применяются по одному, каждый в своей
// транзакции вместе с записью новой версии.
func Migrate(ctx context.Context, database *sql.DB, log *zap.Logger) error {
	store, err := goosedb.NewStore(goosedb.DialectPostgres, VersionTable)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	conn, err := database.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrateLockID); err != nil {
		return fmt.Errorf("migrate lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrateLockID)
	}()

	current, err := CurrentVersion(ctx, database, store)
	if err != nil {
		return err
	}

	switch {
	case current == SchemaVersion:
		log.Debug("schema is up to date", zap.Int64("version", current))
		return nil
	case current > SchemaVersion:
		log.Warn("schema is newer than this build, leaving it as is",
			zap.Int64("version", current), zap.Int64("supported", SchemaVersion))
		return nil
	case current == 0:
		if err := applyStep(ctx, database, store, SchemaVersion, migrationStep{statements: schemaStatements}); err != nil {
			return fmt.Errorf("migrate: initial schema: %w", err)
		}
		log.Warn("schema created", zap.Int64("version", int64(SchemaVersion)))
		return nil
	}

	for v := current + 1; v <= SchemaVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			return fmt.Errorf("migrate: no step to version %d", v)
		}
		if err := applyStep(ctx, database, store, v, step); err != nil {
			return fmt.Errorf("migrate to %d: %w", v, err)
		}
		for _, q := range step.after {
			if _, err := database.ExecContext(ctx, q); err != nil {
				// версия уже записана, схема корректна
				log.Warn("post-migration step failed", zap.Int64("version", v), zap.Error(err))
			}
		}
		log.Warn("schema migrated", zap.Int64("version", v))
	}
	return nil
}

// CurrentVersion возвращает сохранённую версию схемы; 0, если таблицы версий ещё нет.
func CurrentVersion(ctx context.Context, database *sql.DB, store goosedb.Store) (int64, error) {
	var exists bool
	if err := database.QueryRowContext(ctx,
		`SELECT to_regclass($1) IS NOT NULL`, VersionTable).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check version table: %w", err)
	}
	if !exists {
		if err := createVersionTable(ctx, database, store); err != nil {
			return 0, err
		}
		return 0, nil
	}

	v, err := store.GetLatestVersion(ctx, database)
	if errors.Is(err, goosedb.ErrVersionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func createVersionTable(ctx context.Context, database *sql.DB, store goosedb.Store) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := store.CreateVersionTable(ctx, tx); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}
	// как и goose, начинаем с нулевой версии
	if err := store.Insert(ctx, tx, goosedb.InsertRequest{Version: 0}); err != nil {
		return fmt.Errorf("init version table: %w", err)
	}
	return tx.Commit()
}

func applyStep(ctx context.Context, database *sql.DB, store goosedb.Store, version int64, step migrationStep) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range step.statements {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	if err := store.Insert(ctx, tx, goosedb.InsertRequest{Version: version}); err != nil {
		return fmt.Errorf("record version %d: %w", version, err)
	}
	return tx.Commit()
}
