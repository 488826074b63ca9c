// internal/store/audit.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultAuditQueue is the Redis list the offline statistics worker drains.
const DefaultAuditQueue = "busfahrer_actions"

// ActionRecord is one authoritative game mutation, queued for audit and
// offline statistics processing.
type ActionRecord struct {
	GameID     string         `json:"gameId"`
	ActorID    string         `json:"actorId"`
	ActionType string         `json:"actionType"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  int64          `json:"timestamp"`
}

// AuditQueue pushes action records onto a Redis list. All publishing is
// best effort: a dead Redis must never fail a game command.
type AuditQueue struct {
	rdb   *redis.Client
	queue string
	log   *logrus.Logger
}

// NewAuditQueue connects to Redis and verifies the connection. A nil queue
// is returned (with the error) when Redis is unreachable; callers may run
// without auditing.
func NewAuditQueue(addr string, db int, queue string, log *logrus.Logger) (*AuditQueue, error) {
	if queue == "" {
		queue = DefaultAuditQueue
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &AuditQueue{rdb: rdb, queue: queue, log: log}, nil
}

// Publish enqueues one record. Errors are logged, never returned; a nil
// receiver is a no-op so auditing stays optional.
func (q *AuditQueue) Publish(ctx context.Context, record ActionRecord) {
	if q == nil {
		return
	}
	record.Timestamp = time.Now().Unix()
	data, err := json.Marshal(record)
	if err != nil {
		q.log.Warnf("audit: failed to marshal action record: %v", err)
		return
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		q.log.Warnf("audit: failed to push to %q: %v", q.queue, err)
	}
}
