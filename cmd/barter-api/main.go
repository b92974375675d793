package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/matcher"
	"github.com/rajivgeraev/barter-api/internal/middleware"
	"github.com/rajivgeraev/barter-api/internal/services/auth"
	"github.com/rajivgeraev/barter-api/internal/services/item"
	"github.com/rajivgeraev/barter-api/internal/services/like"
	"github.com/rajivgeraev/barter-api/internal/services/media"
	"github.com/rajivgeraev/barter-api/internal/services/suggestion"
	"github.com/rajivgeraev/barter-api/internal/services/trade"
	"github.com/rajivgeraev/barter-api/internal/utils"
	"github.com/rajivgeraev/barter-api/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Загружаем конфигурацию
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	zapLogger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("❌ Ошибка инициализации логгера: %v", err)
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализируем базу данных
	pool, err := db.NewPool(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalw("Ошибка при инициализации базы данных", "error", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		sugar.Fatalw("Ошибка применения схемы", "error", err)
	}

	timeout := cfg.DatabaseConfig.QueryTimeout
	userRepo := db.NewUserRepository(pool, timeout)
	itemRepo := db.NewItemRepository(pool, timeout)
	likeRepo := db.NewLikeRepository(pool, timeout)
	tradeRepo := db.NewTradeRepository(pool, timeout)
	graphRepo := db.NewGraphRepository(pool, timeout)

	jwtService := utils.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)

	// Хранилище изображений не обязательно: без него подборка отдаёт сохранённые URL
	var (
		storage *media.CloudinaryStorage
		images  matcher.ImageResolver
	)
	if cfg.CloudinaryEnabled() {
		storage, err = media.NewCloudinaryStorage(cfg.CloudinaryConfig)
		if err != nil {
			sugar.Fatalw("Ошибка инициализации хранилища изображений", "error", err)
		}
		images = storage
	} else {
		sugar.Warn("Cloudinary не настроен, загрузка изображений отключена")
	}

	// Подбор трёхсторонних обменов
	sc := cfg.SuggestionConfig
	finder := matcher.NewFinder(graphRepo, userRepo, images, sc.Limits(), sugar.Named("matcher"))
	suggester, err := matcher.NewCachedFinder(finder, sc.CacheSize, sc.CacheTTL)
	if err != nil {
		sugar.Fatalw("Ошибка создания кэша подборок", "error", err)
	}

	// Изменения лайков и вещей с других инстансов сбрасывают кэш
	listener := db.NewGraphListener(cfg.DatabaseURL, suggester, sugar.Named("listener"))
	listener.Start(ctx)
	defer listener.Stop()

	// Realtime
	hub := websocket.NewManager(websocket.RoomPolicy{Trades: tradeRepo}, sugar.Named("ws"))
	mux := http.NewServeMux()
	mux.Handle("/ws", websocket.NewHandler(hub, jwtService))
	realtime := &http.Server{
		Addr:              cfg.RealtimeAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		sugar.Infow("Realtime сервер запущен", "addr", cfg.RealtimeAddr)
		if err := realtime.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorw("Ошибка realtime сервера", "error", err)
			stop()
		}
	}()

	// Создаём экземпляр Fiber
	app := fiber.New(fiber.Config{
		AppName:      "Barter API",
		ErrorHandler: middleware.ErrorHandler,
		BodyLimit:    12 << 20,
	})

	// Добавляем middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		ExposeHeaders:    []string{"X-Suggestions-Capped", "Retry-After"},
		AllowCredentials: false,
	}))

	// Регистрируем маршруты
	auth.NewAuthService(cfg.TelegramBotToken, jwtService, userRepo, sugar.Named("auth")).SetupRoutes(app)
	item.NewItemService(itemRepo, suggester, jwtService, sugar.Named("item")).SetupRoutes(app)
	like.NewLikeService(likeRepo, suggester, jwtService, sugar.Named("like")).SetupRoutes(app)
	trade.NewTradeService(tradeRepo, itemRepo, hub, suggester, jwtService, sugar.Named("trade")).SetupRoutes(app)
	suggestion.NewSuggestionService(suggester, jwtService, sugar.Named("suggestion")).SetupRoutes(app)
	if storage != nil {
		media.NewMediaService(cfg.CloudinaryConfig, storage, jwtService, sugar.Named("media")).SetupRoutes(app)
	}

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	go func() {
		<-ctx.Done()
		sugar.Info("Остановка сервера")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		hub.Shutdown()
		if err := realtime.Shutdown(shutdownCtx); err != nil {
			sugar.Errorw("Ошибка остановки realtime сервера", "error", err)
		}
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			sugar.Errorw("Ошибка остановки HTTP сервера", "error", err)
		}
	}()

	// Запускаем сервер
	sugar.Infow("✅ Barter API запущен", "port", cfg.Port)
	if err := app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		sugar.Errorw("Ошибка HTTP сервера", "error", err)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
