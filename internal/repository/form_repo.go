package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatforms-backend/internal/models"
)

type FormRepo struct {
	pool *pgxpool.Pool
}

func NewFormRepo(pool *pgxpool.Pool) *FormRepo {
	return &FormRepo{pool: pool}
}

const formColumns = `id, title, description, fields, webhook_url, is_published, created_by, created_at, updated_at`

func scanForm(row pgx.Row) (*models.Form, error) {
	f := &models.Form{}
	var fields []byte
	err := row.Scan(
		&f.ID, &f.Title, &f.Description, &fields, &f.WebhookURL,
		&f.IsPublished, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &f.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields of form %s: %w", f.ID, err)
	}
	return f, nil
}

func (r *FormRepo) Create(ctx context.Context, f *models.Form) error {
	f.ID = uuid.New()
	fields, err := json.Marshal(f.Fields)
	if err != nil {
		return err
	}
	query := `INSERT INTO forms (id, title, description, fields, webhook_url, is_published, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		f.ID, f.Title, f.Description, fields, f.WebhookURL, f.IsPublished, f.CreatedBy,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
}

func (r *FormRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Form, error) {
	return scanForm(r.pool.QueryRow(ctx, "SELECT "+formColumns+" FROM forms WHERE id = $1", id))
}

// List returns all forms, or only published ones.
func (r *FormRepo) List(ctx context.Context, publishedOnly bool) ([]models.Form, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+formColumns+` FROM forms
		WHERE NOT $1 OR is_published
		ORDER BY created_at DESC`, publishedOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	forms := make([]models.Form, 0)
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		forms = append(forms, *f)
	}
	return forms, rows.Err()
}

func (r *FormRepo) Update(ctx context.Context, f *models.Form) error {
	fields, err := json.Marshal(f.Fields)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, `
		UPDATE forms SET title = $1, description = $2, fields = $3, webhook_url = $4,
			is_published = $5, updated_at = NOW()
		WHERE id = $6 RETURNING created_at, updated_at`,
		f.Title, f.Description, fields, f.WebhookURL, f.IsPublished, f.ID,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
}

func (r *FormRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM forms WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *FormRepo) CreateResponse(ctx context.Context, resp *models.FormResponse) error {
	resp.ID = uuid.New()
	if resp.ForwardStatus == "" {
		resp.ForwardStatus = models.ForwardStatusNone
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO form_responses (id, form_id, user_id, data, forward_status)
		VALUES ($1, $2, $3, $4, $5) RETURNING submitted_at`,
		resp.ID, resp.FormID, resp.UserID, []byte(resp.Data), resp.ForwardStatus,
	).Scan(&resp.SubmittedAt)
}

func (r *FormRepo) GetResponse(ctx context.Context, id uuid.UUID) (*models.FormResponse, error) {
	resp := &models.FormResponse{}
	var data []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, form_id, user_id, data, forward_status, submitted_at
		FROM form_responses WHERE id = $1`, id,
	).Scan(&resp.ID, &resp.FormID, &resp.UserID, &data, &resp.ForwardStatus, &resp.SubmittedAt)
	if err != nil {
		return nil, err
	}
	resp.Data = data
	return resp, nil
}

func (r *FormRepo) ListResponses(ctx context.Context, formID uuid.UUID) ([]models.FormResponse, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, form_id, user_id, data, forward_status, submitted_at
		FROM form_responses WHERE form_id = $1
		ORDER BY submitted_at DESC`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := make([]models.FormResponse, 0)
	for rows.Next() {
		var resp models.FormResponse
		var data []byte
		if err := rows.Scan(&resp.ID, &resp.FormID, &resp.UserID, &data, &resp.ForwardStatus, &resp.SubmittedAt); err != nil {
			return nil, err
		}
		resp.Data = data
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

func (r *FormRepo) UpdateForwardStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, "UPDATE form_responses SET forward_status = $1 WHERE id = $2", status, id)
	return err
}
