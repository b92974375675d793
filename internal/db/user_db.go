package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/barter-api/internal/models"
)

// TelegramProfile - данные пользователя из init data Telegram
type TelegramProfile struct {
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	PhotoURL     string
	IsPremium    bool
	LanguageCode string
	RawData      []byte // JSONB данные
}

// UserRepository работает с таблицами users и telegram_users
type UserRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewUserRepository(pool *pgxpool.Pool, timeout time.Duration) *UserRepository {
	return &UserRepository{pool: pool, timeout: timeout}
}

// CreateOrUpdateTelegramUser создает нового пользователя через Telegram или обновляет существующего
func (r *UserRepository) CreateOrUpdateTelegramUser(ctx context.Context, p TelegramProfile) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT user_id FROM telegram_users WHERE telegram_id = $1
	`, p.TelegramID).Scan(&userID)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx, `
			INSERT INTO users (first_name, last_name, username, avatar_url, last_login_at)
			VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
			RETURNING id
		`, p.FirstName, p.LastName, p.Username, p.PhotoURL).Scan(&userID)
		if err != nil {
			return nil, fmt.Errorf("ошибка при создании пользователя: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO telegram_users (user_id, telegram_id, username, first_name, last_name, photo_url, is_premium, language_code, raw_data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, userID, p.TelegramID, p.Username, p.FirstName, p.LastName, p.PhotoURL, p.IsPremium, p.LanguageCode, p.RawData)
		if err != nil {
			return nil, fmt.Errorf("ошибка при создании Telegram пользователя: %w", err)
		}

	case err != nil:
		return nil, fmt.Errorf("ошибка при проверке существования пользователя Telegram: %w", err)

	default:
		// Профиль в users редактирует сам пользователь, здесь обновляем только время входа
		_, err = tx.Exec(ctx, `
			UPDATE users SET last_login_at = CURRENT_TIMESTAMP WHERE id = $1
		`, userID)
		if err != nil {
			return nil, fmt.Errorf("ошибка при обновлении времени входа пользователя: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE telegram_users
			SET username = $1, first_name = $2, last_name = $3, photo_url = $4,
				is_premium = $5, language_code = $6, raw_data = $7, updated_at = CURRENT_TIMESTAMP
			WHERE telegram_id = $8
		`, p.Username, p.FirstName, p.LastName, p.PhotoURL, p.IsPremium, p.LanguageCode, p.RawData, p.TelegramID)
		if err != nil {
			return nil, fmt.Errorf("ошибка при обновлении Telegram пользователя: %w", err)
		}
	}

	user, err := scanUser(tx.QueryRow(ctx, userSelect+` WHERE id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении пользователя: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}
	return user, nil
}

// GetUserByID получает пользователя по ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	user, err := scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE id = $1 AND is_active`, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

// UsersByID возвращает активных пользователей по списку ID. Отсутствующие просто не попадают в map.
func (r *UserRepository) UsersByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	users := make(map[uuid.UUID]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, userSelect+` WHERE id = ANY($1::uuid[]) AND is_active`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса пользователей: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		users[user.ID] = *user
	}
	return users, rows.Err()
}

const userSelect = `SELECT id, username, first_name, last_name, avatar_url FROM users`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	var username, firstName, lastName, avatarURL pgtype.Text

	if err := row.Scan(&user.ID, &username, &firstName, &lastName, &avatarURL); err != nil {
		return nil, err
	}

	// Преобразуем nullable поля
	user.Username = username.String
	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.AvatarURL = avatarURL.String
	return &user, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
