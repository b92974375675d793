// Package matcher подбирает трёхсторонние обмены.
//
// Граф строится так: для каждого лайка (liker, item) на доступной вещи есть ребро
// owner(item) -> liker. Трёхсторонний обмен - это цикл U -> B -> C -> U,
// где каждое ребро подтверждено своей вещью:
//
//   - вещь U лайкнул B,
//   - вещь B лайкнул C,
//   - вещь C лайкнул U.
//
// Поиск идёт от фиксированного U и ограничен тремя уровнями вложенных выборок,
// каждая из которых обрезается лимитом (см. Limits).
package matcher

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rajivgeraev/barter-api/internal/models"
)

// Limits ограничивает объём работы одного запроса
type Limits struct {
	MaxItemsPerUser  int           // сколько доступных вещей брать у одного пользователя
	MaxLikersPerItem int           // сколько лайкнувших брать у одной вещи
	MaxLikedItems    int           // сколько лайкнутых вызывающим вещей учитывать
	MaxResults       int           // сколько циклов вернуть
	Parallelism      int           // сколько веток B обрабатывать одновременно
	Timeout          time.Duration // общий таймаут вычисления
}

// DefaultLimits возвращает лимиты по умолчанию
func DefaultLimits() Limits {
	return Limits{
		MaxItemsPerUser:  100,
		MaxLikersPerItem: 50,
		MaxLikedItems:    500,
		MaxResults:       200,
		Parallelism:      8,
		Timeout:          3 * time.Second,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxItemsPerUser <= 0 {
		l.MaxItemsPerUser = d.MaxItemsPerUser
	}
	if l.MaxLikersPerItem <= 0 {
		l.MaxLikersPerItem = d.MaxLikersPerItem
	}
	if l.MaxLikedItems <= 0 {
		l.MaxLikedItems = d.MaxLikedItems
	}
	if l.MaxResults <= 0 {
		l.MaxResults = d.MaxResults
	}
	if l.Parallelism <= 0 {
		l.Parallelism = d.Parallelism
	}
	return l
}

// Result - результат подбора.
// Capped выставляется, если хотя бы один лимит отрезал кандидатов:
// в этом случае список может быть неполным.
type Result struct {
	Suggestions []models.SuggestedTrade
	Capped      bool
}

// Suggester - то, что умеет подбирать обмены для пользователя
type Suggester interface {
	FindSuggestedTrades(ctx context.Context, userID uuid.UUID) (Result, error)
}

// Cycle - найденный цикл до обогащения профилями
type Cycle struct {
	UserB, UserC        uuid.UUID
	ItemA, ItemB, ItemC models.Item
	RankedAt            time.Time // самый свежий лайк из трёх
}

type cycleKey struct {
	userB, userC        uuid.UUID
	itemA, itemB, itemC uuid.UUID
}

func (c Cycle) key() cycleKey {
	return cycleKey{c.UserB, c.UserC, c.ItemA.ID, c.ItemB.ID, c.ItemC.ID}
}

// Finder ищет трёхсторонние обмены. Не хранит состояния между вызовами
// и безопасен для конкурентного использования.
type Finder struct {
	repo   ItemLikeRepository
	users  UserDirectory
	images ImageResolver
	limits Limits
	logger *zap.SugaredLogger
}

// NewFinder создаёт Finder. images может быть nil.
func NewFinder(repo ItemLikeRepository, users UserDirectory, images ImageResolver, limits Limits, logger *zap.SugaredLogger) *Finder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Finder{
		repo:   repo,
		users:  users,
		images: images,
		limits: limits.withDefaults(),
		logger: logger,
	}
}

// FindSuggestedTrades возвращает циклы, в которых userID выступает пользователем A.
// Пустой результат - это успех. Ошибка сабзапроса в любой ветке валит весь вызов
// с ErrDataUnavailable: частичный результат не отдаётся.
func (f *Finder) FindSuggestedTrades(ctx context.Context, userID uuid.UUID) (res Result, err error) {
	start := time.Now()
	defer func() { observe(start, res, err) }()

	if userID == uuid.Nil {
		return Result{}, ErrUnauthorized
	}

	if f.limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.limits.Timeout)
		defer cancel()
	}

	caller, err := f.users.UsersByID(ctx, []uuid.UUID{userID})
	if err != nil {
		return Result{}, unavailable("resolve caller", err)
	}
	if _, ok := caller[userID]; !ok {
		return Result{}, ErrUnauthorized
	}

	cycles, capped, err := f.collectCycles(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if len(cycles) == 0 {
		return Result{Suggestions: []models.SuggestedTrade{}, Capped: capped}, nil
	}

	users, err := f.resolveUsers(ctx, userID, cycles)
	if err != nil {
		return Result{}, err
	}

	// Циклы с пропавшими пользователями отбрасываются до лимита,
	// иначе они занимали бы места в выдаче
	cycles = withKnownUsers(cycles, users, f.logger)
	cycles, c := f.truncate(cycles)
	capped = capped || c

	return Result{Suggestions: f.present(userID, cycles, users), Capped: capped}, nil
}

// FindCycles перечисляет уникальные циклы с якорем userID, отсортированные
// детерминированно: сначала самые свежие, затем по идентификаторам.
// Профили участников не проверяются.
func (f *Finder) FindCycles(ctx context.Context, userID uuid.UUID) ([]Cycle, bool, error) {
	cycles, capped, err := f.collectCycles(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	cycles, c := f.truncate(cycles)
	return cycles, capped || c, nil
}

func (f *Finder) truncate(cycles []Cycle) ([]Cycle, bool) {
	if len(cycles) > f.limits.MaxResults {
		return cycles[:f.limits.MaxResults], true
	}
	return cycles, false
}

// collectCycles возвращает все найденные циклы в порядке ранжирования, без лимита выдачи
func (f *Finder) collectCycles(ctx context.Context, userID uuid.UUID) ([]Cycle, bool, error) {
	var capped bool

	ownItems, c, err := f.ownedItems(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	capped = capped || c
	if len(ownItems) == 0 {
		return nil, capped, nil
	}

	// Вещи, которые хочет U, сгруппированные по владельцу (кандидату C)
	likedByOwner, c, err := f.likedItemsByOwner(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	capped = capped || c
	if len(likedByOwner) == 0 {
		return nil, capped, nil
	}

	// Первый уровень: кто из B хочет какие вещи U
	legsByB := make(map[uuid.UUID][]leg)
	var candidatesB []uuid.UUID
	for _, item := range ownItems {
		likers, c, err := f.likers(ctx, item)
		if err != nil {
			return nil, false, err
		}
		capped = capped || c
		for _, like := range likers {
			if like.UserID == userID {
				continue
			}
			if _, seen := legsByB[like.UserID]; !seen {
				candidatesB = append(candidatesB, like.UserID)
			}
			legsByB[like.UserID] = append(legsByB[like.UserID], leg{item: item, likedAt: like.CreatedAt})
		}
	}
	if len(candidatesB) == 0 {
		return nil, capped, nil
	}

	// Второй и третий уровни параллельно по B
	var (
		mu    sync.Mutex
		found = make(map[cycleKey]Cycle)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.limits.Parallelism)
	for _, userB := range candidatesB {
		g.Go(func() error {
			branch, branchCapped, err := f.exploreBranch(gctx, userID, userB, legsByB[userB], likedByOwner)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			capped = capped || branchCapped
			for _, cycle := range branch {
				found[cycle.key()] = cycle
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	cycles := make([]Cycle, 0, len(found))
	for _, cycle := range found {
		cycles = append(cycles, cycle)
	}
	sortCycles(cycles)
	return cycles, capped, nil
}

type leg struct {
	item    models.Item
	likedAt time.Time
}

func (f *Finder) exploreBranch(ctx context.Context, userA, userB uuid.UUID, legsA []leg, likedByOwner map[uuid.UUID][]models.LikedItem) ([]Cycle, bool, error) {
	itemsB, capped, err := f.ownedItems(ctx, userB)
	if err != nil {
		return nil, false, err
	}

	var cycles []Cycle
	for _, itemB := range itemsB {
		likers, c, err := f.likers(ctx, itemB)
		if err != nil {
			return nil, false, err
		}
		capped = capped || c

		for _, like := range likers {
			userC := like.UserID
			if userC == userA || userC == userB {
				continue
			}
			for _, itemC := range likedByOwner[userC] {
				for _, legA := range legsA {
					cycle := Cycle{
						UserB:    userB,
						UserC:    userC,
						ItemA:    legA.item,
						ItemB:    itemB,
						ItemC:    itemC.Item,
						RankedAt: latest(legA.likedAt, like.CreatedAt, itemC.LikedAt),
					}
					if validCycle(userA, cycle) {
						cycles = append(cycles, cycle)
					}
				}
			}
		}
	}
	return cycles, capped, nil
}

// validCycle проверяет инварианты: разные пользователи, разные вещи,
// каждая вещь принадлежит отдающему и доступна.
func validCycle(userA uuid.UUID, c Cycle) bool {
	if userA == c.UserB || userA == c.UserC || c.UserB == c.UserC {
		return false
	}
	if c.ItemA.ID == c.ItemB.ID || c.ItemA.ID == c.ItemC.ID || c.ItemB.ID == c.ItemC.ID {
		return false
	}
	if c.ItemA.UserID != userA || c.ItemB.UserID != c.UserB || c.ItemC.UserID != c.UserC {
		return false
	}
	return c.ItemA.Available() && c.ItemB.Available() && c.ItemC.Available()
}

func (f *Finder) ownedItems(ctx context.Context, userID uuid.UUID) ([]models.Item, bool, error) {
	limit := f.limits.MaxItemsPerUser
	items, err := f.repo.AvailableItemsOwnedBy(ctx, userID, limit+1)
	if err != nil {
		return nil, false, unavailable("items owned by "+userID.String(), err)
	}
	capped := len(items) > limit
	if capped {
		items = items[:limit]
	}
	return items, capped, nil
}

func (f *Finder) likers(ctx context.Context, item models.Item) ([]models.Like, bool, error) {
	limit := f.limits.MaxLikersPerItem
	likes, err := f.repo.LikersOf(ctx, item.ID, limit+1)
	if err != nil {
		return nil, false, unavailable("likers of "+item.ID.String(), err)
	}
	capped := len(likes) > limit
	if capped {
		likes = likes[:limit]
	}
	// Владелец не может хотеть собственную вещь
	out := likes[:0:0]
	for _, like := range likes {
		if like.UserID != item.UserID {
			out = append(out, like)
		}
	}
	return out, capped, nil
}

func (f *Finder) likedItemsByOwner(ctx context.Context, userID uuid.UUID) (map[uuid.UUID][]models.LikedItem, bool, error) {
	limit := f.limits.MaxLikedItems
	liked, err := f.repo.AvailableItemsLikedBy(ctx, userID, limit+1)
	if err != nil {
		return nil, false, unavailable("items liked by "+userID.String(), err)
	}
	capped := len(liked) > limit
	if capped {
		liked = liked[:limit]
	}
	byOwner := make(map[uuid.UUID][]models.LikedItem)
	for _, li := range liked {
		if li.Item.UserID == userID || !li.Item.Available() {
			continue
		}
		byOwner[li.Item.UserID] = append(byOwner[li.Item.UserID], li)
	}
	return byOwner, capped, nil
}

// resolveUsers загружает профили A и всех B, C из циклов
func (f *Finder) resolveUsers(ctx context.Context, userA uuid.UUID, cycles []Cycle) (map[uuid.UUID]models.User, error) {
	ids := []uuid.UUID{userA}
	seen := map[uuid.UUID]bool{userA: true}
	for _, c := range cycles {
		for _, id := range []uuid.UUID{c.UserB, c.UserC} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	users, err := f.users.UsersByID(ctx, ids)
	if err != nil {
		return nil, unavailable("resolve users", err)
	}
	return users, nil
}

// withKnownUsers оставляет циклы, все участники которых активны
func withKnownUsers(cycles []Cycle, users map[uuid.UUID]models.User, logger *zap.SugaredLogger) []Cycle {
	out := cycles[:0]
	for _, c := range cycles {
		_, okB := users[c.UserB]
		_, okC := users[c.UserC]
		if !okB || !okC {
			// Пользователь удалён или деактивирован после выборки графа
			logger.Debugw("пропускаем цикл с неактивным пользователем", "user_b", c.UserB, "user_c", c.UserC)
			continue
		}
		out = append(out, c)
	}
	return out
}

// present обогащает циклы профилями и изображениями
func (f *Finder) present(userA uuid.UUID, cycles []Cycle, users map[uuid.UUID]models.User) []models.SuggestedTrade {
	suggestions := make([]models.SuggestedTrade, 0, len(cycles))

	a := users[userA]
	for _, c := range cycles {
		b, cu := users[c.UserB], users[c.UserC]
		suggestions = append(suggestions, models.SuggestedTrade{
			UserAID:     a.ID,
			UserAName:   a.DisplayName(),
			UserAAvatar: a.AvatarURL,
			ItemAID:     c.ItemA.ID,
			ItemAName:   c.ItemA.Name,
			ItemAImage:  f.imageURL(c.ItemA),

			UserBID:     b.ID,
			UserBName:   b.DisplayName(),
			UserBAvatar: b.AvatarURL,
			ItemBID:     c.ItemB.ID,
			ItemBName:   c.ItemB.Name,
			ItemBImage:  f.imageURL(c.ItemB),

			UserCID:     cu.ID,
			UserCName:   cu.DisplayName(),
			UserCAvatar: cu.AvatarURL,
			ItemCID:     c.ItemC.ID,
			ItemCName:   c.ItemC.Name,
			ItemCImage:  f.imageURL(c.ItemC),
		})
	}
	return suggestions
}

func (f *Finder) imageURL(item models.Item) string {
	if item.ImageURL != "" || item.ImagePublicID == "" || f.images == nil {
		return item.ImageURL
	}
	url, err := f.images.ImageURL(item.ImagePublicID)
	if err != nil {
		f.logger.Warnw("не удалось получить URL изображения", "item_id", item.ID, "error", err)
		return ""
	}
	return url
}

func sortCycles(cycles []Cycle) {
	sort.Slice(cycles, func(i, j int) bool {
		a, b := cycles[i], cycles[j]
		if !a.RankedAt.Equal(b.RankedAt) {
			return a.RankedAt.After(b.RankedAt)
		}
		for _, pair := range [][2]uuid.UUID{
			{a.UserB, b.UserB},
			{a.UserC, b.UserC},
			{a.ItemA.ID, b.ItemA.ID},
			{a.ItemB.ID, b.ItemB.ID},
			{a.ItemC.ID, b.ItemC.ID},
		} {
			if cmp := bytes.Compare(pair[0][:], pair[1][:]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
}

func latest(times ...time.Time) time.Time {
	var out time.Time
	for _, t := range times {
		if t.After(out) {
			out = t
		}
	}
	return out
}
