package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"veritas/backend/pkg/models"
)

// ListRoles lists all roles ordered by name.
func (s *PostgresStore) ListRoles(ctx context.Context) ([]*models.Role, error) {
	rows, err := s.db.Query(ctx, "SELECT id, name, display_name FROM roles ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.DisplayName); err != nil {
			return nil, err
		}
		roles = append(roles, &r)
	}
	return roles, rows.Err()
}

// GetRole retrieves a role by its ID.
func (s *PostgresStore) GetRole(ctx context.Context, id string) (*models.Role, error) {
	return s.getRole(ctx, "SELECT id, name, display_name FROM roles WHERE id = $1", id)
}

// GetRoleByName retrieves a role by its name.
func (s *PostgresStore) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	return s.getRole(ctx, "SELECT id, name, display_name FROM roles WHERE name = $1", name)
}

func (s *PostgresStore) getRole(ctx context.Context, query, arg string) (*models.Role, error) {
	var r models.Role
	if err := s.db.QueryRow(ctx, query, arg).Scan(&r.ID, &r.Name, &r.DisplayName); err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ListPermissions lists all permissions grouped by module.
func (s *PostgresStore) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	rows, err := s.db.Query(ctx, "SELECT id, name, display_name, module FROM permissions ORDER BY module, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []*models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Module); err != nil {
			return nil, err
		}
		perms = append(perms, &p)
	}
	return perms, rows.Err()
}

// UpsertRole inserts a role or refreshes its display name. The stored ID is written back.
func (s *PostgresStore) UpsertRole(ctx context.Context, role *models.Role) error {
	if role.ID == "" {
		role.ID = newID()
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO roles (id, name, display_name) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET display_name = EXCLUDED.display_name
		 RETURNING id`,
		role.ID, role.Name, role.DisplayName).Scan(&role.ID)
}

// UpsertPermission inserts a permission or refreshes its labels. The stored ID is written back.
func (s *PostgresStore) UpsertPermission(ctx context.Context, perm *models.Permission) error {
	if perm.ID == "" {
		perm.ID = newID()
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO permissions (id, name, display_name, module) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO UPDATE SET display_name = EXCLUDED.display_name, module = EXCLUDED.module
		 RETURNING id`,
		perm.ID, perm.Name, perm.DisplayName, perm.Module).Scan(&perm.ID)
}

// LookupRolePermission reads the toggle for one role and permission name.
func (s *PostgresStore) LookupRolePermission(ctx context.Context, roleName, permissionName string) (bool, bool, error) {
	var allowed bool
	err := s.db.QueryRow(ctx,
		`SELECT rp.allowed FROM role_permissions rp
		 JOIN roles r ON r.id = rp.role_id
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE r.name = $1 AND p.name = $2`,
		roleName, permissionName).Scan(&allowed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return allowed, true, nil
}

// ListAllowedPermissions returns the allowed permission names of a role.
func (s *PostgresStore) ListAllowedPermissions(ctx context.Context, roleName string) ([]string, bool, error) {
	rows, err := s.db.Query(ctx,
		`SELECT p.name, rp.allowed FROM role_permissions rp
		 JOIN roles r ON r.id = rp.role_id
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE r.name = $1
		 ORDER BY p.name`,
		roleName)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var (
		names   []string
		hasRows bool
	)
	for rows.Next() {
		var (
			name    string
			allowed bool
		)
		if err := rows.Scan(&name, &allowed); err != nil {
			return nil, false, err
		}
		hasRows = true
		if allowed {
			names = append(names, name)
		}
	}
	return names, hasRows, rows.Err()
}

// ListRolePermissions lists every permission with the role's toggle.
func (s *PostgresStore) ListRolePermissions(ctx context.Context, roleID string) ([]*models.RolePermissionView, error) {
	rows, err := s.db.Query(ctx,
		`SELECT p.id, p.name, p.display_name, p.module, COALESCE(rp.allowed, FALSE)
		 FROM permissions p
		 LEFT JOIN role_permissions rp ON rp.permission_id = p.id AND rp.role_id = $1
		 ORDER BY p.module, p.name`,
		roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []*models.RolePermissionView
	for rows.Next() {
		var v models.RolePermissionView
		if err := rows.Scan(&v.ID, &v.Name, &v.DisplayName, &v.Module, &v.Allowed); err != nil {
			return nil, err
		}
		views = append(views, &v)
	}
	return views, rows.Err()
}

// SetRolePermissions upserts toggles for a role in one transaction and returns how many were written.
func (s *PostgresStore) SetRolePermissions(ctx context.Context, roleID string, updates []models.RolePermission) (int, error) {
	written := 0
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, u := range updates {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id, allowed) VALUES ($1, $2, $3)
				 ON CONFLICT (role_id, permission_id) DO UPDATE SET allowed = EXCLUDED.allowed`,
				roleID, u.PermissionID, u.Allowed); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}
