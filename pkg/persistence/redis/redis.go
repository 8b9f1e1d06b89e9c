// Package redis provides Redis persistence for workflows. Each workflow is a
// JSON document; a sorted set keyed by creation time indexes them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "agentflow:workflow:"
	indexKey   = "agentflow:workflows"
	maxRetries = 5
)

// Persistence implements the persistence layer for Redis.
type Persistence struct {
	client redis.UniversalClient
	logger *slog.Logger
	now    func() time.Time
}

// NewPersistence connects to the redis:// URL and pings it.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewPersistenceWithClient(client, logger), nil
}

// NewPersistenceWithClient wraps an existing client.
func NewPersistenceWithClient(client redis.UniversalClient, logger *slog.Logger) *Persistence {
	return &Persistence{
		client: client,
		logger: logger.With("module", "redis_persistence"),
		now:    time.Now,
	}
}

// Key is the redis key holding the workflow document.
func Key(id string) string {
	return keyPrefix + id
}

// Close closes the client.
func (p *Persistence) Close(_ context.Context) error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

// HealthCheck pings the server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// List returns every workflow, newest first.
func (p *Persistence) List(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := p.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, persistence.NewWorkflowError("List", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))
	if len(ids) == 0 {
		return workflows, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = Key(id)
	}

	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence.NewWorkflowError("List", "", err)
	}

	for i, value := range values {
		body, ok := value.(string)
		if !ok {
			p.logger.WarnContext(ctx, "index references a missing workflow", "workflow_id", ids[i])

			continue
		}

		workflow, err := decode([]byte(body))
		if err != nil {
			return nil, persistence.NewWorkflowError("List", ids[i], err)
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

// Get returns a workflow by its ID.
func (p *Persistence) Get(ctx context.Context, id string) (*models.Workflow, error) {
	body, err := p.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.NotFound("Get", id)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("Get", id, err)
	}

	workflow, err := decode(body)
	if err != nil {
		return nil, persistence.NewWorkflowError("Get", id, err)
	}

	return workflow, nil
}

// Create stores a new workflow and indexes it.
func (p *Persistence) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	record, err := persistence.NewRecord(workflow, p.now())
	if err != nil {
		return nil, persistence.NewWorkflowError("Create", workflow.ID, err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, persistence.NewWorkflowError("Create", record.ID, fmt.Errorf("failed to marshal workflow: %w", err))
	}

	key := Key(record.ID)

	err = p.retry(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}

		if exists > 0 {
			return persistence.ErrWorkflowAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(record.CreatedAt.UnixNano()), Member: record.ID})

			return nil
		})

		return err
	}, key)
	if err != nil {
		return nil, persistence.NewWorkflowError("Create", record.ID, err)
	}

	return record, nil
}

// Update reads, merges and writes the document inside a WATCH transaction so
// concurrent updates never lose a version increment.
func (p *Persistence) Update(ctx context.Context, id string, patch models.WorkflowPatch) (*models.Workflow, error) {
	key := Key(id)

	var record *models.Workflow

	err := p.retry(ctx, func(tx *redis.Tx) error {
		body, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return persistence.ErrWorkflowNotFound
		}

		if err != nil {
			return err
		}

		stored, err := decode(body)
		if err != nil {
			return err
		}

		record, err = persistence.ApplyUpdate(stored, patch, p.now())
		if err != nil {
			return err
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal workflow: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)

			return nil
		})

		return err
	}, key)
	if err != nil {
		return nil, persistence.NewWorkflowError("Update", id, err)
	}

	return record, nil
}

// Remove deletes the document and its index entry.
func (p *Persistence) Remove(ctx context.Context, id string) error {
	var deleted *redis.IntCmd

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, Key(id))
		pipe.ZRem(ctx, indexKey, id)

		return nil
	})
	if err != nil {
		return persistence.NewWorkflowError("Remove", id, err)
	}

	if deleted.Val() == 0 {
		return persistence.NotFound("Remove", id)
	}

	return nil
}

func (p *Persistence) retry(ctx context.Context, fn func(tx *redis.Tx) error, key string) error {
	for attempt := range maxRetries {
		err := p.client.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}

		p.logger.DebugContext(ctx, "optimistic transaction lost a race, retrying", "key", key, "attempt", attempt+1)
	}

	return persistence.ErrConcurrentUpdate
}

func decode(body []byte) (*models.Workflow, error) {
	var workflow models.Workflow

	if err := json.Unmarshal(body, &workflow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}

	return &workflow, nil
}
