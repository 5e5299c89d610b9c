package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"trustplane/internal/assessment/models"
	"trustplane/internal/platform/redis"
	dErrors "trustplane/pkg/domain-errors"
)

// Redis is the shared response cache used when multiple orchestrator
// instances serve the same fleet.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a redis-backed response cache.
func NewRedis(client *redis.Client) (*Redis, error) {
	if client == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "redis client is required")
	}
	return &Redis{client: client}, nil
}

// Get returns the cached response for key. A missing key is not an error.
func (r *Redis) Get(ctx context.Context, key string) (*models.AssessmentResponse, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "cache get")
	}

	var resp models.AssessmentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "decode cached response")
	}
	return &resp, true, nil
}

// Set stores the response under key for ttl.
func (r *Redis) Set(ctx context.Context, key string, resp *models.AssessmentResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode response")
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "cache set")
	}
	return nil
}
