package matcher

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized - вызывающего нельзя идентифицировать. Повторять запрос бессмысленно.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDataUnavailable - хранилище не ответило или истёк таймаут.
	// Запрос можно повторить с задержкой; это не то же самое, что пустой результат.
	ErrDataUnavailable = errors.New("data unavailable")
)

func unavailable(op string, err error) error {
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrDataUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrDataUnavailable, op, err)
}
