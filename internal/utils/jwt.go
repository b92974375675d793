package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken возвращается для неподписанных, просроченных или неполных токенов
var ErrInvalidToken = errors.New("invalid token")

// JWTService отвечает за создание и валидацию JWT токенов
type JWTService struct {
	secretKey string
	ttl       time.Duration
}

// NewJWTService создаёт новый экземпляр JWTService
func NewJWTService(secretKey string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTService{secretKey: secretKey, ttl: ttl}
}

// GenerateToken создаёт JWT токен для пользователя
func (s *JWTService) GenerateToken(userID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secretKey))
}

// ValidateToken проверяет JWT токен
func (s *JWTService) ValidateToken(tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secretKey), nil
	}, jwt.WithExpirationRequired())
}

// ExtractUserID проверяет токен и достаёт из него ID пользователя
func (s *JWTService) ExtractUserID(tokenString string) (uuid.UUID, error) {
	token, err := s.ValidateToken(tokenString)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	raw, ok := claims["user_id"].(string)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(raw)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}
