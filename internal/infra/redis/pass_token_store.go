package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"anniv-certificate-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// PassTokenStore keeps pass tokens in Redis so every instance can honour them.
// Tokens are stored as: SET anniv:pass:{token} {json} EX ttl
type PassTokenStore struct {
	client *redis.Client
}

func NewPassTokenStore(client *redis.Client) *PassTokenStore {
	return &PassTokenStore{client: client}
}

func (s *PassTokenStore) Save(ctx context.Context, token domain.PassToken, ttl time.Duration) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(token.Token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store pass token: %w", err)
	}
	return nil
}

func (s *PassTokenStore) Lookup(ctx context.Context, token string) (domain.PassToken, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PassToken{}, domain.ErrPassTokenInvalid
	}
	if err != nil {
		return domain.PassToken{}, fmt.Errorf("lookup pass token: %w", err)
	}
	var out domain.PassToken
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.PassToken{}, fmt.Errorf("decode pass token: %w", err)
	}
	return out, nil
}

func (s *PassTokenStore) key(token string) string {
	return "anniv:pass:" + token
}
