package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatforms-backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `u.id, u.email, u.password_hash, u.full_name, u.avatar_url, u.role_id, r.name,
	u.is_active, u.created_at, u.last_login_at`

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FullName, &user.AvatarURL,
		&user.RoleID, &user.RoleName, &user.IsActive, &user.CreatedAt, &user.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create inserts the user with the given role (nil for none).
func (r *UserRepo) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, full_name, avatar_url, role_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	user.ID = uuid.New()
	user.IsActive = true

	return r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.FullName, user.AvatarURL, user.RoleID,
	).Scan(&user.CreatedAt)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users u LEFT JOIN roles r ON r.id = u.role_id
		WHERE u.email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users u LEFT JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+`
		FROM users u LEFT JOIN roles r ON r.id = u.role_id
		ORDER BY u.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *UserRepo) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE users SET last_login_at = $1 WHERE id = $2", time.Now(), userID)
	return err
}

// UpdateProfile sets the fields a user may edit on themselves.
func (r *UserRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE users SET full_name = $1, avatar_url = $2 WHERE id = $3",
		user.FullName, user.AvatarURL, user.ID,
	)
	return err
}

// UpdateAdmin applies the admin-editable fields; nil leaves a field unchanged.
func (r *UserRepo) UpdateAdmin(ctx context.Context, userID uuid.UUID, roleID *uuid.UUID, isActive *bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET
			role_id = COALESCE($1, role_id),
			is_active = COALESCE($2, is_active)
		WHERE id = $3`,
		roleID, isActive, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}
