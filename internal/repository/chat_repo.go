package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatforms-backend/internal/models"
)

type ChatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) *ChatRepo {
	return &ChatRepo{pool: pool}
}

const chatColumns = `id, name, description, webhook_url, allowed_roles, created_by, created_at, updated_at`

func scanChat(row pgx.Row) (*models.Chat, error) {
	c := &models.Chat{}
	err := row.Scan(
		&c.ID, &c.Name, &c.Description, &c.WebhookURL, &c.AllowedRoles,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ChatRepo) Create(ctx context.Context, c *models.Chat) error {
	c.ID = uuid.New()
	if c.AllowedRoles == nil {
		c.AllowedRoles = []uuid.UUID{}
	}
	query := `INSERT INTO chats (id, name, description, webhook_url, allowed_roles, created_by)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		c.ID, c.Name, c.Description, c.WebhookURL, c.AllowedRoles, c.CreatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *ChatRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	return scanChat(r.pool.QueryRow(ctx, "SELECT "+chatColumns+" FROM chats WHERE id = $1", id))
}

func (r *ChatRepo) List(ctx context.Context) ([]models.Chat, error) {
	return r.list(ctx, "SELECT "+chatColumns+" FROM chats ORDER BY name")
}

// ListForRole returns chats open to everyone plus those allowing roleID.
func (r *ChatRepo) ListForRole(ctx context.Context, roleID *uuid.UUID) ([]models.Chat, error) {
	return r.list(ctx, `SELECT `+chatColumns+` FROM chats
		WHERE cardinality(allowed_roles) = 0 OR $1::uuid = ANY(allowed_roles)
		ORDER BY name`, roleID)
}

func (r *ChatRepo) list(ctx context.Context, query string, args ...any) ([]models.Chat, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := make([]models.Chat, 0)
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

func (r *ChatRepo) Update(ctx context.Context, c *models.Chat) error {
	if c.AllowedRoles == nil {
		c.AllowedRoles = []uuid.UUID{}
	}
	return r.pool.QueryRow(ctx, `
		UPDATE chats SET name = $1, description = $2, webhook_url = $3, allowed_roles = $4, updated_at = NOW()
		WHERE id = $5 RETURNING updated_at`,
		c.Name, c.Description, c.WebhookURL, c.AllowedRoles, c.ID,
	).Scan(&c.UpdatedAt)
}

func (r *ChatRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM chats WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// WebhookURL returns the chat's configured webhook. An unknown chat has none.
func (r *ChatRepo) WebhookURL(ctx context.Context, chatID string) (*string, error) {
	id, err := uuid.Parse(chatID)
	if err != nil {
		return nil, nil
	}

	var url *string
	err = r.pool.QueryRow(ctx, "SELECT webhook_url FROM chats WHERE id = $1", id).Scan(&url)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return url, nil
}
