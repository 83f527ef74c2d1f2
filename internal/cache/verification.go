package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/attendance"
)

const verificationPrefix = "attendance:verify:"

// Verification caches public reference lookups in Redis.
type Verification struct {
	client *redis.Client
	ttl    time.Duration
}

var _ attendance.VerificationCache = (*Verification)(nil)

func NewVerification(client *redis.Client, ttl time.Duration) *Verification {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Verification{client: client, ttl: ttl}
}

func (c *Verification) Get(ctx context.Context, code string) (attendance.Verification, bool, error) {
	value, err := c.client.Get(ctx, verificationKey(code)).Bytes()
	if err == redis.Nil {
		return attendance.Verification{}, false, nil
	}
	if err != nil {
		return attendance.Verification{}, false, err
	}
	var v attendance.Verification
	if err := json.Unmarshal(value, &v); err != nil {
		return attendance.Verification{}, false, err
	}
	return v, true, nil
}

func (c *Verification) Set(ctx context.Context, v attendance.Verification) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, verificationKey(v.RefCode), data, c.ttl).Err()
}

func (c *Verification) Invalidate(ctx context.Context, code string) error {
	return c.client.Del(ctx, verificationKey(code)).Err()
}

func verificationKey(code string) string {
	return verificationPrefix + attendance.NormalizeRefCode(code)
}
