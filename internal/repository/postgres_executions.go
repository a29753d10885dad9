package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"veritas/backend/pkg/models"
)

const executionColumns = "id, workflow_id, document_id, status, triggered_by, started_at, finished_at, error_message, created_at"

// CreateExecution saves a new workflow execution.
func (s *PostgresStore) CreateExecution(ctx context.Context, exec *models.WorkflowExecution) error {
	if exec.ID == "" {
		exec.ID = newID()
	}
	exec.CreatedAt = now()
	_, err := s.db.Exec(ctx,
		"INSERT INTO workflow_executions ("+executionColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		exec.ID, exec.WorkflowID, exec.DocumentID, string(exec.Status), exec.TriggeredBy,
		exec.StartedAt, exec.FinishedAt, exec.ErrorMessage, exec.CreatedAt)
	return err
}

// UpdateExecution writes the mutable fields of an execution.
func (s *PostgresStore) UpdateExecution(ctx context.Context, exec *models.WorkflowExecution) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE workflow_executions SET document_id = $1, status = $2, finished_at = $3, error_message = $4 WHERE id = $5",
		exec.DocumentID, string(exec.Status), exec.FinishedAt, exec.ErrorMessage, exec.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetExecution retrieves an execution by its ID.
func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	row := s.db.QueryRow(ctx, "SELECT "+executionColumns+" FROM workflow_executions WHERE id = $1", id)
	exec, err := scanExecution(row)
	if err != nil {
		return nil, notFound(err)
	}
	return exec, nil
}

// ListExecutions lists the newest executions of a workflow.
func (s *PostgresStore) ListExecutions(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx,
		"SELECT "+executionColumns+" FROM workflow_executions WHERE workflow_id = $1 ORDER BY created_at DESC LIMIT $2",
		workflowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*models.WorkflowExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, exec)
	}
	return executions, rows.Err()
}

func scanExecution(row pgx.Row) (*models.WorkflowExecution, error) {
	var (
		exec   models.WorkflowExecution
		status string
	)
	if err := row.Scan(&exec.ID, &exec.WorkflowID, &exec.DocumentID, &status, &exec.TriggeredBy,
		&exec.StartedAt, &exec.FinishedAt, &exec.ErrorMessage, &exec.CreatedAt); err != nil {
		return nil, err
	}
	exec.Status = models.RunStatus(status)
	return &exec, nil
}

const stepColumns = "id, execution_id, node_id, node_type, sequence, status, started_at, finished_at, input_payload, output_payload, latency_seconds, error_message, created_at"

// CreateStep appends a step to an execution.
func (s *PostgresStore) CreateStep(ctx context.Context, step *models.ExecutionStep) error {
	if step.ID == "" {
		step.ID = newID()
	}
	step.CreatedAt = now()
	input, err := marshalNullable(step.InputPayload)
	if err != nil {
		return err
	}
	output, err := marshalNullable(step.OutputPayload)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		"INSERT INTO execution_steps ("+stepColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)",
		step.ID, step.ExecutionID, step.NodeID, step.NodeType, step.Sequence, string(step.Status),
		step.StartedAt, step.FinishedAt, input, output, step.LatencySeconds, step.ErrorMessage, step.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateSequence
	}
	return err
}

// UpdateStep writes the outcome of a step.
func (s *PostgresStore) UpdateStep(ctx context.Context, step *models.ExecutionStep) error {
	output, err := marshalNullable(step.OutputPayload)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		"UPDATE execution_steps SET status = $1, finished_at = $2, output_payload = $3, latency_seconds = $4, error_message = $5 WHERE id = $6",
		string(step.Status), step.FinishedAt, output, step.LatencySeconds, step.ErrorMessage, step.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSteps lists the steps of an execution in append order.
func (s *PostgresStore) ListSteps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+stepColumns+" FROM execution_steps WHERE execution_id = $1 ORDER BY sequence ASC",
		executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*models.ExecutionStep
	for rows.Next() {
		var (
			step          models.ExecutionStep
			status        string
			input, output []byte
		)
		if err := rows.Scan(&step.ID, &step.ExecutionID, &step.NodeID, &step.NodeType, &step.Sequence, &status,
			&step.StartedAt, &step.FinishedAt, &input, &output, &step.LatencySeconds, &step.ErrorMessage,
			&step.CreatedAt); err != nil {
			return nil, err
		}
		step.Status = models.RunStatus(status)
		if step.InputPayload, err = unmarshalNullable(input); err != nil {
			return nil, err
		}
		if step.OutputPayload, err = unmarshalNullable(output); err != nil {
			return nil, err
		}
		steps = append(steps, &step)
	}
	return steps, rows.Err()
}
