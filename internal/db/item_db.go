package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/barter-api/internal/models"
)

// ItemRepository работает с таблицами items и item_images
type ItemRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewItemRepository(pool *pgxpool.Pool, timeout time.Duration) *ItemRepository {
	return &ItemRepository{pool: pool, timeout: timeout}
}

// Create сохраняет вещь вместе с изображениями. ID и время заполняются здесь.
func (r *ItemRepository) Create(ctx context.Context, item *models.Item) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO items (user_id, name, description, category, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, item.UserID, item.Name, item.Description, item.Category, item.Status).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка вставки вещи: %w", err)
	}

	for i := range item.Images {
		img := &item.Images[i]
		img.ItemID = item.ID
		img.Position = i
		img.IsMain = i == 0 // Первое изображение - основное

		metadata, err := json.Marshal(img.Metadata)
		if err != nil {
			return fmt.Errorf("ошибка сериализации метаданных: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO item_images (item_id, url, preview_url, public_id, is_main, position, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at
		`, img.ItemID, img.URL, img.PreviewURL, img.PublicID, img.IsMain, img.Position, metadata).
			Scan(&img.ID, &img.CreatedAt)
		if err != nil {
			return fmt.Errorf("ошибка вставки изображения: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// GetByID возвращает вещь с изображениями
func (r *ItemRepository) GetByID(ctx context.Context, itemID uuid.UUID) (*models.Item, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	item, err := scanItem(r.pool.QueryRow(ctx, itemSelect+` WHERE id = $1`, itemID))
	if err != nil {
		return nil, notFound(err)
	}

	items := []models.Item{*item}
	if err := loadImages(ctx, r.pool, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// ListByOwner возвращает вещи пользователя и их общее количество.
// Пустой status означает любой статус, кроме removed.
func (r *ItemRepository) ListByOwner(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Item, int, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const filter = ` WHERE user_id = $1 AND (($2 = '' AND status <> 'removed') OR status = $2)`

	rows, err := r.pool.Query(ctx, itemSelect+filter+`
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4
	`, userID, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка запроса вещей: %w", err)
	}

	items, err := collectItems(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := loadImages(ctx, r.pool, items); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`+filter, userID, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчета вещей: %w", err)
	}
	return items, total, nil
}

// SetStatus меняет статус вещи. Недоступная вещь теряет все лайки.
func (r *ItemRepository) SetStatus(ctx context.Context, itemID uuid.UUID, status string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := setItemStatus(ctx, tx, itemID, status); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Delete удаляет вещь. Изображения и лайки удаляются каскадом.
// Вещь, на которую ссылаются обмены, удалить нельзя: ErrConflict.
func (r *ItemRepository) Delete(ctx context.Context, itemID uuid.UUID) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, itemID)
	if isForeignKeyViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("ошибка удаления вещи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func setItemStatus(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE items SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, itemID)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса вещи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if status != models.ItemStatusActive {
		if _, err := tx.Exec(ctx, `DELETE FROM likes WHERE item_id = $1`, itemID); err != nil {
			return fmt.Errorf("ошибка удаления лайков вещи: %w", err)
		}
	}
	return nil
}

const itemSelect = `SELECT id, user_id, name, description, category, status, created_at, updated_at FROM items`

func scanItem(row pgx.Row) (*models.Item, error) {
	var item models.Item
	err := row.Scan(&item.ID, &item.UserID, &item.Name, &item.Description,
		&item.Category, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func collectItems(rows pgx.Rows) ([]models.Item, error) {
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования вещи: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// loadImages одним запросом подгружает изображения для списка вещей
func loadImages(ctx context.Context, pool *pgxpool.Pool, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}

	index := make(map[uuid.UUID]int, len(items))
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		index[item.ID] = i
		ids[i] = item.ID
	}

	rows, err := pool.Query(ctx, `
		SELECT id, item_id, url, preview_url, public_id, is_main, position, metadata, created_at
		FROM item_images
		WHERE item_id = ANY($1::uuid[])
		ORDER BY item_id, position ASC
	`, uuidStrings(ids))
	if err != nil {
		return fmt.Errorf("ошибка запроса изображений: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img models.ItemImage
		var metadata []byte
		if err := rows.Scan(&img.ID, &img.ItemID, &img.URL, &img.PreviewURL, &img.PublicID,
			&img.IsMain, &img.Position, &metadata, &img.CreatedAt); err != nil {
			return fmt.Errorf("ошибка сканирования изображения: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &img.Metadata); err != nil {
				return fmt.Errorf("ошибка разбора метаданных: %w", err)
			}
		}

		i := index[img.ItemID]
		items[i].Images = append(items[i].Images, img)
		if img.IsMain {
			items[i].ImageURL = img.URL
			items[i].ImagePublicID = img.PublicID
		}
	}
	return rows.Err()
}
