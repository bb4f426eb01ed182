package stickybucket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisService stores assignment documents as JSON values in Redis, one key
// per identifying attribute. Suited to multi-instance deployments that need
// assignments shared across hosts.
type RedisService struct {
	db     redis.UniversalClient
	prefix string
}

// NewRedisService wraps an existing Redis client. Keys are namespaced with
// prefix (default "gbStickyBuckets__" when empty, matching the remote
// tooling's storage convention).
func NewRedisService(client redis.UniversalClient, prefix string) *RedisService {
	if prefix == "" {
		prefix = "gbStickyBuckets__"
	}
	return &RedisService{db: client, prefix: prefix}
}

func (r *RedisService) GetAssignments(ctx context.Context, attributeName, attributeValue string) (*AssignmentsDocument, error) {
	raw, err := r.db.Get(ctx, r.prefix+Key(attributeName, attributeValue)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stickybucket: redis get: %w", err)
	}
	var doc AssignmentsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("stickybucket: decode document: %w", err)
	}
	return &doc, nil
}

func (r *RedisService) SaveAssignments(ctx context.Context, doc *AssignmentsDocument) error {
	if doc == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("stickybucket: encode document: %w", err)
	}
	if err := r.db.Set(ctx, r.prefix+Key(doc.AttributeName, doc.AttributeValue), raw, 0).Err(); err != nil {
		return fmt.Errorf("stickybucket: redis set: %w", err)
	}
	return nil
}
