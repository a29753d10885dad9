package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"veritas/backend/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore is a PostgreSQL implementation of the Repository interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables used by the store if they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func newID() string { return uuid.New().String() }

func now() time.Time { return time.Now().UTC() }

// marshalNullable encodes v as JSON, mapping nil maps to SQL NULL.
func marshalNullable(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

const workflowColumns = "id, name, description, nodes, edges, is_active, created_by, created_at, updated_at"

// CreateWorkflow saves a new workflow.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	if wf.ID == "" {
		wf.ID = newID()
	}
	wf.CreatedAt = now()
	wf.UpdatedAt = wf.CreatedAt
	nodes, edges, err := encodeGraph(wf)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		"INSERT INTO workflows ("+workflowColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		wf.ID, wf.Name, wf.Description, nodes, edges, wf.IsActive, wf.CreatedBy, wf.CreatedAt, wf.UpdatedAt)
	return err
}

// GetWorkflow retrieves a workflow by its ID.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	row := s.db.QueryRow(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE id = $1", id)
	wf, err := scanWorkflow(row)
	if err != nil {
		return nil, notFound(err)
	}
	return wf, nil
}

// ListWorkflows lists workflows, newest first.
func (s *PostgresStore) ListWorkflows(ctx context.Context, createdBy string) ([]*models.Workflow, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE ($1 = '' OR created_by = $1) ORDER BY created_at DESC",
		createdBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// UpdateWorkflow overwrites the mutable fields of a workflow.
func (s *PostgresStore) UpdateWorkflow(ctx context.Context, wf *models.Workflow) error {
	wf.UpdatedAt = now()
	nodes, edges, err := encodeGraph(wf)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		"UPDATE workflows SET name = $1, description = $2, nodes = $3, edges = $4, is_active = $5, updated_at = $6 WHERE id = $7",
		wf.Name, wf.Description, nodes, edges, wf.IsActive, wf.UpdatedAt, wf.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWorkflow removes a workflow. Its executions are kept as history.
func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeGraph(wf *models.Workflow) (nodes, edges []byte, err error) {
	if wf.Nodes == nil {
		wf.Nodes = []models.Node{}
	}
	if wf.Edges == nil {
		wf.Edges = []models.Edge{}
	}
	if nodes, err = json.Marshal(wf.Nodes); err != nil {
		return nil, nil, fmt.Errorf("failed to encode nodes: %w", err)
	}
	if edges, err = json.Marshal(wf.Edges); err != nil {
		return nil, nil, fmt.Errorf("failed to encode edges: %w", err)
	}
	return nodes, edges, nil
}

func scanWorkflow(row pgx.Row) (*models.Workflow, error) {
	var (
		wf           models.Workflow
		nodes, edges []byte
	)
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &nodes, &edges, &wf.IsActive,
		&wf.CreatedBy, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(nodes, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &wf.Edges); err != nil {
		return nil, fmt.Errorf("failed to decode edges: %w", err)
	}
	return &wf, nil
}
