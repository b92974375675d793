package matcher

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/barter-api/internal/models"
)

var (
	ErrUnknownItem = errors.New("unknown item")
	// ErrOwnLike - синоним models.ErrOwnLike для вызывающих снимок
	ErrOwnLike = models.ErrOwnLike
)

// Snapshot - снимок пользователей, вещей и лайков в памяти.
// Реализует ItemLikeRepository и UserDirectory без базы данных.
type Snapshot struct {
	mu    sync.RWMutex
	users map[uuid.UUID]models.User
	items map[uuid.UUID]models.Item
	likes map[uuid.UUID]map[uuid.UUID]time.Time // item -> liker -> время лайка
}

// NewSnapshot создаёт пустой снимок
func NewSnapshot() *Snapshot {
	return &Snapshot{
		users: make(map[uuid.UUID]models.User),
		items: make(map[uuid.UUID]models.Item),
		likes: make(map[uuid.UUID]map[uuid.UUID]time.Time),
	}
}

func (s *Snapshot) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Snapshot) AddItem(item models.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

// AddLike добавляет лайк. Владелец не может лайкнуть свою вещь.
func (s *Snapshot) AddLike(userID, itemID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return ErrUnknownItem
	}
	if item.UserID == userID {
		return ErrOwnLike
	}
	if s.likes[itemID] == nil {
		s.likes[itemID] = make(map[uuid.UUID]time.Time)
	}
	s.likes[itemID][userID] = at
	return nil
}

func (s *Snapshot) RemoveLike(userID, itemID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.likes[itemID], userID)
}

// SetItemStatus меняет статус вещи
func (s *Snapshot) SetItemStatus(itemID uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return ErrUnknownItem
	}
	item.Status = status
	s.items[itemID] = item
	return nil
}

func (s *Snapshot) AvailableItemsOwnedBy(_ context.Context, userID uuid.UUID, limit int) ([]models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []models.Item
	for _, item := range s.items {
		if item.UserID == userID && item.Available() {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return bytes.Compare(items[i].ID[:], items[j].ID[:]) < 0
	})
	return truncate(items, limit), nil
}

func (s *Snapshot) LikersOf(_ context.Context, itemID uuid.UUID, limit int) ([]models.Like, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemID]
	if !ok {
		return nil, nil
	}
	var likes []models.Like
	for userID, at := range s.likes[itemID] {
		if userID == item.UserID {
			continue
		}
		likes = append(likes, models.Like{UserID: userID, ItemID: itemID, CreatedAt: at})
	}
	sortLikes(likes)
	return truncate(likes, limit), nil
}

func (s *Snapshot) AvailableItemsLikedBy(_ context.Context, userID uuid.UUID, limit int) ([]models.LikedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var liked []models.LikedItem
	for itemID, likers := range s.likes {
		at, ok := likers[userID]
		if !ok {
			continue
		}
		item := s.items[itemID]
		if item.UserID == userID || !item.Available() {
			continue
		}
		liked = append(liked, models.LikedItem{Item: item, LikedAt: at})
	}
	sort.Slice(liked, func(i, j int) bool {
		if !liked[i].LikedAt.Equal(liked[j].LikedAt) {
			return liked[i].LikedAt.After(liked[j].LikedAt)
		}
		return bytes.Compare(liked[i].Item.ID[:], liked[j].Item.ID[:]) < 0
	})
	return truncate(liked, limit), nil
}

func (s *Snapshot) UsersByID(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]models.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func sortLikes(likes []models.Like) {
	sort.Slice(likes, func(i, j int) bool {
		if !likes[i].CreatedAt.Equal(likes[j].CreatedAt) {
			return likes[i].CreatedAt.After(likes[j].CreatedAt)
		}
		return bytes.Compare(likes[i].UserID[:], likes[j].UserID[:]) < 0
	})
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
