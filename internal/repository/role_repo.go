package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatforms-backend/internal/models"
)

type RoleRepo struct {
	pool *pgxpool.Pool
}

func NewRoleRepo(pool *pgxpool.Pool) *RoleRepo {
	return &RoleRepo{pool: pool}
}

func (r *RoleRepo) List(ctx context.Context) ([]models.Role, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, name, description, created_at FROM roles ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]models.Role, 0)
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *RoleRepo) GetByName(ctx context.Context, name string) (*models.Role, error) {
	role := &models.Role{}
	err := r.pool.QueryRow(ctx,
		"SELECT id, name, description, created_at FROM roles WHERE name = $1", name,
	).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (r *RoleRepo) Create(ctx context.Context, role *models.Role) error {
	role.ID = uuid.New()
	return r.pool.QueryRow(ctx,
		"INSERT INTO roles (id, name, description) VALUES ($1, $2, $3) RETURNING created_at",
		role.ID, role.Name, role.Description,
	).Scan(&role.CreatedAt)
}

func (r *RoleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM roles WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
