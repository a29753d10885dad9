package repository

import (
	"context"
	"fmt"
	"strings"

	"veritas/backend/pkg/models"
)

// AppendAuditLog inserts an audit entry. There is no update path.
func (s *PostgresStore) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now()
	}
	input, err := marshalNullable(entry.PolicyInput)
	if err != nil {
		return err
	}
	decision, err := marshalNullable(entry.PolicyDecision)
	if err != nil {
		return err
	}
	metadata, err := marshalNullable(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, role, resource, action, resource_id, timestamp, policy_input, policy_decision, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.UserID, entry.Role, entry.Resource, entry.Action, entry.ResourceID, entry.Timestamp,
		input, decision, metadata)
	return err
}

// ListAuditLogs lists audit entries, newest first.
func (s *PostgresStore) ListAuditLogs(ctx context.Context, f AuditFilter) ([]*models.AuditLog, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("user_id", f.UserID)
	add("resource", f.Resource)
	add("action", f.Action)
	add("resource_id", f.ResourceID)

	query := "SELECT id, user_id, role, resource, action, resource_id, timestamp, policy_input, policy_decision, metadata FROM audit_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		var (
			e                         models.AuditLog
			input, decision, metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Role, &e.Resource, &e.Action, &e.ResourceID, &e.Timestamp,
			&input, &decision, &metadata); err != nil {
			return nil, err
		}
		if e.PolicyInput, err = unmarshalNullable(input); err != nil {
			return nil, err
		}
		if e.PolicyDecision, err = unmarshalNullable(decision); err != nil {
			return nil, err
		}
		if e.Metadata, err = unmarshalNullable(metadata); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
