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

// Типы выборки обменов
const (
	TradesIncoming = "incoming"
	TradesOutgoing = "outgoing"
	TradesAll      = "all"
)

// TradeRepository хранит предложения обмена
type TradeRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewTradeRepository(pool *pgxpool.Pool, timeout time.Duration) *TradeRepository {
	return &TradeRepository{pool: pool, timeout: timeout}
}

// Create сохраняет предложение. Владение и доступность обеих вещей
// перепроверяются под блокировкой: подборка могла устареть.
func (r *TradeRepository) Create(ctx context.Context, t *models.Trade) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	items, err := lockItems(ctx, tx, t.OfferedItemID, t.RequestedItemID)
	if err != nil {
		return err
	}
	if err := checkTradeItems(t, items); err != nil {
		return err
	}

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM trades
			WHERE offered_item_id = $1 AND requested_item_id = $2 AND status = 'pending'
		)
	`, t.OfferedItemID, t.RequestedItemID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка проверки существующих обменов: %w", err)
	}
	if exists {
		return ErrConflict
	}

	t.Status = models.TradeStatusPending
	err = tx.QueryRow(ctx, `
		INSERT INTO trades (proposer_id, receiver_id, offered_item_id, requested_item_id, cash_amount, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, t.ProposerID, t.ReceiverID, t.OfferedItemID, t.RequestedItemID, t.CashAmount, t.Message, t.Status).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения предложения обмена: %w", err)
	}

	return tx.Commit(ctx)
}

// GetByID возвращает предложение без связанных вещей
func (r *TradeRepository) GetByID(ctx context.Context, tradeID uuid.UUID) (*models.Trade, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	t, err := scanTrade(r.pool.QueryRow(ctx, tradeSelect+` WHERE id = $1`, tradeID))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// List возвращает обмены пользователя вместе с вещами и участниками.
// Пустой status означает любой статус.
func (r *TradeRepository) List(ctx context.Context, userID uuid.UUID, tradeType, status string) ([]models.Trade, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var who string
	switch tradeType {
	case TradesIncoming:
		who = `receiver_id = $1`
	case TradesOutgoing:
		who = `proposer_id = $1`
	default:
		who = `(proposer_id = $1 OR receiver_id = $1)`
	}

	rows, err := r.pool.Query(ctx, tradeSelect+` WHERE `+who+` AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, userID, status)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса предложений обмена: %w", err)
	}

	var trades []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("ошибка сканирования обмена: %w", err)
		}
		trades = append(trades, *t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachDetails(ctx, trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// UpdateStatus переводит обмен из from в to. Если статус успел смениться, возвращает ErrInvalidTransition.
func (r *TradeRepository) UpdateStatus(ctx context.Context, tradeID uuid.UUID, from, to string) error {
	if !models.CanTransition(from, to) {
		return models.ErrInvalidTransition
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE trades SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, tradeID, from)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса предложения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}

// Confirm отмечает подтверждение участника. Когда подтвердили оба,
// обмен завершается, вещи получают статус traded и теряют лайки,
// а другие открытые обмены с этими вещами отклоняются.
func (r *TradeRepository) Confirm(ctx context.Context, tradeID, userID uuid.UUID) (*models.Trade, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := scanTrade(tx.QueryRow(ctx, tradeSelect+` WHERE id = $1 FOR UPDATE`, tradeID))
	if err != nil {
		return nil, notFound(err)
	}

	completed, err := t.Confirm(userID)
	if err != nil {
		return nil, err
	}
	if completed {
		// после принятия владелец мог снять вещь с обмена
		items, err := lockItems(ctx, tx, t.OfferedItemID, t.RequestedItemID)
		if errors.Is(err, ErrNotFound) {
			return nil, models.ErrItemUnavailable
		}
		if err != nil {
			return nil, err
		}
		if err := checkTradeItems(t, items); err != nil {
			return nil, err
		}
		t.Status = models.TradeStatusCompleted
	}

	err = tx.QueryRow(ctx, `
		UPDATE trades
		SET proposer_confirmed = $1, receiver_confirmed = $2, status = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`, t.ProposerConfirmed, t.ReceiverConfirmed, t.Status, t.ID).Scan(&t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка подтверждения обмена: %w", err)
	}

	if completed {
		for _, itemID := range []uuid.UUID{t.OfferedItemID, t.RequestedItemID} {
			if err := setItemStatus(ctx, tx, itemID, models.ItemStatusTraded); err != nil {
				return nil, err
			}
		}
		_, err = tx.Exec(ctx, `
			UPDATE trades SET status = 'rejected', updated_at = NOW()
			WHERE id <> $1 AND status IN ('pending', 'accepted')
			  AND (offered_item_id = ANY($2::uuid[]) OR requested_item_id = ANY($2::uuid[]))
		`, t.ID, uuidStrings([]uuid.UUID{t.OfferedItemID, t.RequestedItemID}))
		if err != nil {
			return nil, fmt.Errorf("ошибка закрытия пересекающихся обменов: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return t, nil
}

// attachDetails подгружает вещи и участников для списка обменов
func (r *TradeRepository) attachDetails(ctx context.Context, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	var itemIDs, userIDs []uuid.UUID
	for _, t := range trades {
		itemIDs = append(itemIDs, t.OfferedItemID, t.RequestedItemID)
		userIDs = append(userIDs, t.ProposerID, t.ReceiverID)
	}

	rows, err := r.pool.Query(ctx, itemSelect+` WHERE id = ANY($1::uuid[])`, uuidStrings(itemIDs))
	if err != nil {
		return fmt.Errorf("ошибка запроса вещей: %w", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return err
	}
	if err := loadImages(ctx, r.pool, items); err != nil {
		return err
	}
	itemsByID := make(map[uuid.UUID]*models.Item, len(items))
	for i := range items {
		itemsByID[items[i].ID] = &items[i]
	}

	rows, err = r.pool.Query(ctx, userSelect+` WHERE id = ANY($1::uuid[])`, uuidStrings(userIDs))
	if err != nil {
		return fmt.Errorf("ошибка запроса пользователей: %w", err)
	}
	defer rows.Close()
	usersByID := make(map[uuid.UUID]*models.User)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		usersByID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range trades {
		t := &trades[i]
		t.OfferedItem = itemsByID[t.OfferedItemID]
		t.RequestedItem = itemsByID[t.RequestedItemID]
		t.Proposer = usersByID[t.ProposerID]
		t.Receiver = usersByID[t.ReceiverID]
	}
	return nil
}

// lockItems блокирует вещи в порядке id, чтобы параллельные обмены не взаимоблокировались
func lockItems(ctx context.Context, tx pgx.Tx, ids ...uuid.UUID) (map[uuid.UUID]models.Item, error) {
	rows, err := tx.Query(ctx, itemSelect+` WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки вещей: %w", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]models.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, ErrNotFound
		}
	}
	return byID, nil
}

// checkTradeItems проверяет, что вещи всё ещё у своих сторон и доступны
func checkTradeItems(t *models.Trade, items map[uuid.UUID]models.Item) error {
	offered, requested := items[t.OfferedItemID], items[t.RequestedItemID]
	if offered.UserID != t.ProposerID || requested.UserID != t.ReceiverID {
		return models.ErrNotOwner
	}
	if !offered.Available() || !requested.Available() {
		return models.ErrItemUnavailable
	}
	return nil
}

const tradeSelect = `SELECT id, proposer_id, receiver_id, offered_item_id, requested_item_id,
	cash_amount, message, status, proposer_confirmed, receiver_confirmed, created_at, updated_at
	FROM trades`

func scanTrade(row pgx.Row) (*models.Trade, error) {
	var t models.Trade
	err := row.Scan(&t.ID, &t.ProposerID, &t.ReceiverID, &t.OfferedItemID, &t.RequestedItemID,
		&t.CashAmount, &t.Message, &t.Status, &t.ProposerConfirmed, &t.ReceiverConfirmed,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
