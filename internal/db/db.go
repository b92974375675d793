package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rajivgeraev/barter-api/internal/config"
)

var (
	// ErrNotFound возвращается, когда запись не найдена
	ErrNotFound = errors.New("not found")
	// ErrConflict возвращается при нарушении уникальности
	ErrConflict = errors.New("conflict")
)

// NewPool инициализирует пул соединений с базой данных
func NewPool(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*pgxpool.Pool, error) {
	// Создаем контекст с таймаутом для подключения
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе URL базы данных: %w", err)
	}

	poolConfig.MaxConns = cfg.DatabaseConfig.MaxConns
	poolConfig.MinConns = cfg.DatabaseConfig.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка при создании пула соединений: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка при проверке соединения: %w", err)
	}

	logger.Infow("Успешное подключение к базе данных",
		"host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)
	return pool, nil
}

// queryTimeout - ограничение на один запрос, если в конфиге не задано
const queryTimeout = 5 * time.Second

// withTimeout возвращает контекст с таймаутом для запросов к базе данных
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = queryTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// notFound переводит pgx.ErrNoRows в ErrNotFound
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// isUniqueViolation проверяет код ошибки Postgres 23505
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isForeignKeyViolation проверяет код ошибки Postgres 23503
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
