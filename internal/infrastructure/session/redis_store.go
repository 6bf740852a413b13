// Package session guarda los refresh tokens en Redis, indexados por el hash del token.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/contratos-api/internal/application/auth"
	"github.com/jhoicas/contratos-api/internal/domain"
)

var _ auth.SessionStore = (*RedisStore)(nil)

const keyPrefix = "refresh:"

type tokenData struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore sesiones de refresh con TTL; cada token se consume una sola vez (GETDEL).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore conecta a redisURL y verifica con un Ping.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient construye el store sobre un cliente existente.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Save guarda la sesión con expiración ttl.
func (s *RedisStore) Save(ctx context.Context, tokenHash, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("save refresh token: ttl inválido %s", ttl)
	}
	data, err := json.Marshal(tokenData{UserID: userID, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal token data: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+tokenHash, data, ttl).Err(); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// Consume lee y borra la sesión en un solo comando. domain.ErrNotFound si no existe,
// venció o ya fue consumida por otra llamada.
func (s *RedisStore) Consume(ctx context.Context, tokenHash string) (string, error) {
	raw, err := s.client.GetDel(ctx, keyPrefix+tokenHash).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume refresh token: %w", err)
	}
	var data tokenData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return "", fmt.Errorf("unmarshal token data: %w", err)
	}
	return data.UserID, nil
}

// Revoke borra la sesión; borrar una inexistente no es error.
func (s *RedisStore) Revoke(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, keyPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Ping verifica que Redis responda (health check).
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close cierra la conexión.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
