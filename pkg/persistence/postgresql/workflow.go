package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/persistence"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const selectWorkflow = `
	SELECT
		id
	  , name
	  , description
	  , tags
	  , status
	  , current_version
	  , COALESCE(owner, '')
	  , created_at
	  , updated_at
	FROM workflows
`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger, now func() time.Time) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger, now: now}
}

type scanner interface {
	Scan(dest ...any) error
}

// GetAll returns all workflows from the database.
func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, selectWorkflow+" ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadGraph(ctx, r.db, workflow); err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

// GetByID returns persistence.ErrWorkflowNotFound when no row matches.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := r.get(ctx, r.db, id, false)
	if err != nil {
		return nil, persistence.NewWorkflowError("Get", id, err)
	}

	return workflow, nil
}

// Create inserts the workflow with its nodes and connections in one transaction.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	record, err := persistence.NewRecord(workflow, r.now())
	if err != nil {
		return nil, persistence.NewWorkflowError("Create", workflow.ID, err)
	}

	err = r.inTx(ctx, func(tx *sql.Tx) error {
		tags, err := json.Marshal(record.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflows (id, name, description, tags, status, current_version, owner, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		`,
			record.ID,
			record.Name,
			record.Description,
			tags,
			record.Status,
			record.CurrentVersion,
			record.Owner,
			record.CreatedAt,
			record.UpdatedAt,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return persistence.ErrWorkflowAlreadyExists
			}

			return fmt.Errorf("failed to insert workflow: %w", err)
		}

		return r.saveGraph(ctx, tx, record)
	})
	if err != nil {
		return nil, persistence.NewWorkflowError("Create", record.ID, err)
	}

	return record, nil
}

// Update locks the row, merges the patch and rewrites nodes and connections.
func (r *WorkflowRepository) Update(ctx context.Context, id string, patch models.WorkflowPatch) (*models.Workflow, error) {
	var record *models.Workflow

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		stored, err := r.get(ctx, tx, id, true)
		if err != nil {
			return err
		}

		record, err = persistence.ApplyUpdate(stored, patch, r.now())
		if err != nil {
			return err
		}

		tags, err := json.Marshal(record.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE workflows SET
				name = $2,
				description = $3,
				tags = $4,
				status = $5,
				current_version = $6,
				updated_at = $7
			WHERE id = $1
		`,
			record.ID,
			record.Name,
			record.Description,
			tags,
			record.Status,
			record.CurrentVersion,
			record.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update workflow: %w", err)
		}

		if patch.Nodes == nil && patch.Connections == nil {
			return nil
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM workflow_connections WHERE workflow_id = $1", id); err != nil {
			return fmt.Errorf("failed to delete existing connections: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", id); err != nil {
			return fmt.Errorf("failed to delete existing nodes: %w", err)
		}

		return r.saveGraph(ctx, tx, record)
	})
	if err != nil {
		return nil, persistence.NewWorkflowError("Update", id, err)
	}

	return record, nil
}

// Delete removes the workflow row.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return persistence.NewWorkflowError("Remove", id, fmt.Errorf("failed to delete workflow: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("Remove", id, fmt.Errorf("failed to get rows affected: %w", err))
	}

	if rowsAffected == 0 {
		return persistence.NotFound("Remove", id)
	}

	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *WorkflowRepository) get(ctx context.Context, q querier, id string, forUpdate bool) (*models.Workflow, error) {
	query := selectWorkflow + " WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	workflow, err := scanWorkflow(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadGraph(ctx, q, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

func scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow models.Workflow
		tags     []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&tags,
		&workflow.Status,
		&workflow.CurrentVersion,
		&workflow.Owner,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(tags, &workflow.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}

	workflow.CreatedAt = workflow.CreatedAt.UTC()
	workflow.UpdatedAt = workflow.UpdatedAt.UTC()

	return &workflow, nil
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, q querier, workflow *models.Workflow) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, node_type, category, label, data, position_x, position_y
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow nodes: %w", err)
	}

	workflow.Nodes = make([]*models.WorkflowNode, 0)

	for rows.Next() {
		var (
			node models.WorkflowNode
			data []byte
		)

		err := rows.Scan(&node.ID, &node.Type, &node.Category, &node.Label, &data, &node.Position.X, &node.Position.Y)
		if err != nil {
			r.closeRows(ctx, rows)

			return fmt.Errorf("failed to scan node: %w", err)
		}

		if data != nil {
			if err := json.Unmarshal(data, &node.Data); err != nil {
				r.closeRows(ctx, rows)

				return fmt.Errorf("failed to unmarshal node data: %w", err)
			}
		}

		workflow.Nodes = append(workflow.Nodes, &node)
	}

	err = rows.Err()
	r.closeRows(ctx, rows)

	if err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT id, source_node_id, target_node_id
		FROM workflow_connections
		WHERE workflow_id = $1
		ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow connections: %w", err)
	}

	defer r.closeRows(ctx, rows)

	workflow.Connections = make([]*models.Connection, 0)

	for rows.Next() {
		var connection models.Connection

		if err := rows.Scan(&connection.ID, &connection.Source, &connection.Target); err != nil {
			return fmt.Errorf("failed to scan connection: %w", err)
		}

		workflow.Connections = append(workflow.Connections, &connection)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating connections: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) saveGraph(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	for i, node := range workflow.Nodes {
		var data []byte

		if node.Data != nil {
			var err error

			data, err = json.Marshal(node.Data)
			if err != nil {
				return fmt.Errorf("failed to marshal node data: %w", err)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_nodes (workflow_id, id, position, node_type, category, label, data, position_x, position_y)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			workflow.ID,
			node.ID,
			i,
			node.Type,
			node.Category,
			node.Label,
			data,
			node.Position.X,
			node.Position.Y,
		)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	for i, connection := range workflow.Connections {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_connections (workflow_id, id, position, source_node_id, target_node_id)
			VALUES ($1, $2, $3, $4, $5)
		`,
			workflow.ID,
			connection.ID,
			i,
			connection.Source,
			connection.Target,
		)
		if err != nil {
			return fmt.Errorf("failed to save connection %s: %w", connection.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
