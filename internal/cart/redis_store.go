package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/AryanJadile/restoflow/internal/redisx"
)

// RedisPersister keeps the durable copy of each terminal's cart under
// cart:{terminal}. No TTL: the cart must survive a terminal restart.
type RedisPersister struct {
	RDB *redis.Client
}

func (s *RedisPersister) Save(ctx context.Context, terminal string, lines []Line) error {
	b, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	return s.RDB.Set(ctx, fmt.Sprintf(redisx.KeyCart, terminal), b, 0).Err()
}

func (s *RedisPersister) Load(ctx context.Context, terminal string) ([]Line, error) {
	b, err := s.RDB.Get(ctx, fmt.Sprintf(redisx.KeyCart, terminal)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lines []Line
	if err := json.Unmarshal(b, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}
