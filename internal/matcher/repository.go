package matcher

import (
	"context"

	"github.com/google/uuid"

	"github.com/rajivgeraev/barter-api/internal/models"
)

// ItemLikeRepository - доступ к графу "владелец -> вещь -> лайкнувший".
// Методы принимают limit и могут вернуть не больше limit строк.
type ItemLikeRepository interface {
	// AvailableItemsOwnedBy возвращает доступные вещи пользователя, новые первыми
	AvailableItemsOwnedBy(ctx context.Context, userID uuid.UUID, limit int) ([]models.Item, error)

	// LikersOf возвращает лайки вещи от пользователей, не являющихся её владельцем, новые первыми
	LikersOf(ctx context.Context, itemID uuid.UUID, limit int) ([]models.Like, error)

	// AvailableItemsLikedBy возвращает доступные чужие вещи, которые лайкнул пользователь
	AvailableItemsLikedBy(ctx context.Context, userID uuid.UUID, limit int) ([]models.LikedItem, error)
}

// UserDirectory отдаёт профили пользователей для формирования ответа
type UserDirectory interface {
	UsersByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error)
}

// ImageResolver строит URL изображения по идентификатору в хранилище
type ImageResolver interface {
	ImageURL(publicID string) (string, error)
}
