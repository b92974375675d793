package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Migrate применяет схему. Все выражения идемпотентны.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()

	// без аргументов pgx использует simple protocol, несколько выражений допустимы
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ошибка применения схемы: %w", err)
	}
	return nil
}
