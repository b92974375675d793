package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/barter-api/internal/matcher"
	"github.com/rajivgeraev/barter-api/internal/models"
)

// GraphRepository отдаёт поиску обменов рёбра "владелец -> вещь -> лайкнувший"
type GraphRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var _ matcher.ItemLikeRepository = (*GraphRepository)(nil)

func NewGraphRepository(pool *pgxpool.Pool, timeout time.Duration) *GraphRepository {
	return &GraphRepository{pool: pool, timeout: timeout}
}

// главное изображение вещи, если оно есть
const mainImageJoin = `
	LEFT JOIN LATERAL (
		SELECT im.url, im.public_id FROM item_images im
		WHERE im.item_id = i.id
		ORDER BY im.is_main DESC, im.position ASC
		LIMIT 1
	) img ON TRUE`

func (r *GraphRepository) AvailableItemsOwnedBy(ctx context.Context, userID uuid.UUID, limit int) ([]models.Item, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.user_id, i.name, i.category, i.status, i.created_at, img.url, img.public_id
		FROM items i`+mainImageJoin+`
		WHERE i.user_id = $1 AND i.status = 'active'
		ORDER BY i.created_at DESC, i.id
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("available items of %s: %w", userID, err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, err := scanGraphItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *GraphRepository) LikersOf(ctx context.Context, itemID uuid.UUID, limit int) ([]models.Like, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT l.user_id, l.created_at
		FROM likes l
		JOIN items i ON i.id = l.item_id
		WHERE l.item_id = $1 AND l.user_id <> i.user_id
		ORDER BY l.created_at DESC, l.user_id
		LIMIT $2
	`, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("likers of %s: %w", itemID, err)
	}
	defer rows.Close()

	var likes []models.Like
	for rows.Next() {
		like := models.Like{ItemID: itemID}
		if err := rows.Scan(&like.UserID, &like.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan like: %w", err)
		}
		likes = append(likes, like)
	}
	return likes, rows.Err()
}

func (r *GraphRepository) AvailableItemsLikedBy(ctx context.Context, userID uuid.UUID, limit int) ([]models.LikedItem, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.user_id, i.name, i.category, i.status, i.created_at, img.url, img.public_id, l.created_at
		FROM likes l
		JOIN items i ON i.id = l.item_id`+mainImageJoin+`
		WHERE l.user_id = $1 AND i.status = 'active' AND i.user_id <> $1
		ORDER BY l.created_at DESC, i.id
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("items liked by %s: %w", userID, err)
	}
	defer rows.Close()

	var liked []models.LikedItem
	for rows.Next() {
		var li models.LikedItem
		var url, publicID pgtype.Text
		err := rows.Scan(&li.Item.ID, &li.Item.UserID, &li.Item.Name, &li.Item.Category,
			&li.Item.Status, &li.Item.CreatedAt, &url, &publicID, &li.LikedAt)
		if err != nil {
			return nil, fmt.Errorf("scan liked item: %w", err)
		}
		li.Item.ImageURL = url.String
		li.Item.ImagePublicID = publicID.String
		liked = append(liked, li)
	}
	return liked, rows.Err()
}

func scanGraphItem(rows pgx.Rows) (models.Item, error) {
	var item models.Item
	var url, publicID pgtype.Text
	err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.Category,
		&item.Status, &item.CreatedAt, &url, &publicID)
	if err != nil {
		return item, fmt.Errorf("scan item: %w", err)
	}
	item.ImageURL = url.String
	item.ImagePublicID = publicID.String
	return item, nil
}
