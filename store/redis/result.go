package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/result"
)

// PutResult stores a result with the retention window as its TTL,
// overwriting any previous entry so completion retries stay idempotent.
func (s *Store) PutResult(ctx context.Context, r *result.Result) error {
	ttl := time.Until(r.ExpiresAt)
	if ttl <= 0 {
		// Already past retention; storing would be a dead write.
		return nil
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("warrant/redis: put result: %w", err)
	}
	if err := s.client.Set(ctx, resultKey(s.queue, r.TaskID.String()), data, ttl).Err(); err != nil {
		return fmt.Errorf("warrant/redis: put result: %w", err)
	}
	return nil
}

// GetResult retrieves a result still within retention. Expiry is enforced
// by the key TTL.
func (s *Store) GetResult(ctx context.Context, taskID id.TaskID) (*result.Result, error) {
	data, err := s.client.Get(ctx, resultKey(s.queue, taskID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, warrant.ErrResultNotFound
		}
		return nil, fmt.Errorf("warrant/redis: get result: %w", err)
	}

	var r result.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("warrant/redis: decode result: %w", err)
	}
	return &r, nil
}
