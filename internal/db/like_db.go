package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/barter-api/internal/models"
)

// LikeRepository хранит рёбра интереса "пользователь -> чужая вещь"
type LikeRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewLikeRepository(pool *pgxpool.Pool, timeout time.Duration) *LikeRepository {
	return &LikeRepository{pool: pool, timeout: timeout}
}

// Add сохраняет лайк. Вещь должна существовать, быть активной и принадлежать другому пользователю.
func (r *LikeRepository) Add(ctx context.Context, userID, itemID uuid.UUID) (*models.Like, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// FOR SHARE не даёт снять вещь с обмена, пока вставляется лайк
	var ownerID uuid.UUID
	var status string
	err = tx.QueryRow(ctx, `
		SELECT user_id, status FROM items WHERE id = $1 FOR SHARE
	`, itemID).Scan(&ownerID, &status)
	if err != nil {
		return nil, notFound(err)
	}
	if ownerID == userID {
		return nil, models.ErrOwnLike
	}
	if status != models.ItemStatusActive {
		return nil, models.ErrItemUnavailable
	}

	like := models.Like{UserID: userID, ItemID: itemID}
	err = tx.QueryRow(ctx, `
		INSERT INTO likes (user_id, item_id) VALUES ($1, $2)
		RETURNING created_at
	`, userID, itemID).Scan(&like.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("ошибка добавления лайка: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return &like, nil
}

// Remove удаляет лайк
func (r *LikeRepository) Remove(ctx context.Context, userID, itemID uuid.UUID) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM likes WHERE user_id = $1 AND item_id = $2`, userID, itemID)
	if err != nil {
		return fmt.Errorf("ошибка удаления лайка: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Exists проверяет, лайкнул ли пользователь вещь
func (r *LikeRepository) Exists(ctx context.Context, userID, itemID uuid.UUID) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM likes WHERE user_id = $1 AND item_id = $2)
	`, userID, itemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки лайка: %w", err)
	}
	return exists, nil
}

// ListByUser возвращает лайки пользователя с вещами, новые первыми, и общее количество
func (r *LikeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Like, int, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT l.created_at,
		       i.id, i.user_id, i.name, i.description, i.category, i.status, i.created_at, i.updated_at
		FROM likes l
		JOIN items i ON i.id = l.item_id
		WHERE l.user_id = $1
		ORDER BY l.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка запроса лайков: %w", err)
	}

	likes, items, err := collectLikes(rows, userID)
	if err != nil {
		return nil, 0, err
	}
	if err := loadImages(ctx, r.pool, items); err != nil {
		return nil, 0, err
	}
	for i := range likes {
		likes[i].Item = &items[i]
	}

	var total int
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM likes WHERE user_id = $1`, userID).Scan(&total)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, fmt.Errorf("ошибка подсчета лайков: %w", err)
	}
	return likes, total, nil
}

func collectLikes(rows pgx.Rows, userID uuid.UUID) ([]models.Like, []models.Item, error) {
	defer rows.Close()

	var likes []models.Like
	var items []models.Item
	for rows.Next() {
		var like models.Like
		var item models.Item
		if err := rows.Scan(&like.CreatedAt,
			&item.ID, &item.UserID, &item.Name, &item.Description,
			&item.Category, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("ошибка сканирования лайка: %w", err)
		}
		like.UserID = userID
		like.ItemID = item.ID
		likes = append(likes, like)
		items = append(items, item)
	}
	return likes, items, rows.Err()
}
