package db

import (
	"context"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	// GraphChannel - канал NOTIFY из триггеров на likes и items
	GraphChannel      = "barter_graph_changed"
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
)

// Invalidator сбрасывает данные, вычисленные по графу лайков
type Invalidator interface {
	Invalidate()
}

// GraphListener слушает изменения графа в Postgres и сбрасывает кэш подборок.
// Так кэш остаётся согласованным между несколькими инстансами API.
type GraphListener struct {
	connStr     string
	invalidator Invalidator
	logger      *zap.SugaredLogger
	shutdownCh  chan struct{}
	done        chan struct{}
}

func NewGraphListener(connStr string, invalidator Invalidator, logger *zap.SugaredLogger) *GraphListener {
	return &GraphListener{
		connStr:     connStr,
		invalidator: invalidator,
		logger:      logger,
		shutdownCh:  make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start запускает прослушивание в фоне
func (l *GraphListener) Start(ctx context.Context) {
	go l.listen(ctx)
	l.logger.Infow("Слушатель изменений графа запущен", "channel", GraphChannel)
}

// Stop останавливает прослушивание и ждёт завершения
func (l *GraphListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	l.logger.Info("Слушатель изменений графа остановлен")
}

func (l *GraphListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			l.logger.Info("Переподключение к каналу уведомлений")
		}
	}
}

func (l *GraphListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, l.onEvent)
	defer listener.Close()

	if err := listener.Listen(GraphChannel); err != nil {
		l.logger.Errorw("Не удалось подписаться на канал", "channel", GraphChannel, "error", err)
		return
	}

	// Пока подписки не было, уведомления могли потеряться
	l.invalidator.Invalidate()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			l.handle(n)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warnw("Ping слушателя не прошёл", "error", err)
				}
			}()
		}
	}
}

// handle сбрасывает кэш. nil приходит после переподключения pq.Listener.
func (l *GraphListener) handle(n *pq.Notification) {
	if n == nil {
		l.logger.Debug("Соединение слушателя восстановлено, сбрасываем кэш")
	} else {
		l.logger.Debugw("Граф изменился", "table", n.Extra)
	}
	l.invalidator.Invalidate()
}

func (l *GraphListener) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		l.logger.Debug("Подключено к каналу уведомлений")
	case pq.ListenerEventDisconnected:
		l.logger.Warnw("Отключено от канала уведомлений", "error", err)
	case pq.ListenerEventReconnected:
		l.logger.Info("Повторно подключено к каналу уведомлений")
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warnw("Не удалось подключиться к каналу уведомлений", "error", err)
	}
}
