package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatforms-backend/internal/models"
)

type stubFormRepo struct {
	forms         map[uuid.UUID]*models.Form
	created       []*models.Form
	responses     []*models.FormResponse
	publishedOnly bool
	forwardStatus string
	forwardErr    error
}

func (s *stubFormRepo) Create(_ context.Context, f *models.Form) error {
	f.ID = uuid.New()
	s.created = append(s.created, f)
	return nil
}

func (s *stubFormRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Form, error) {
	if f, ok := s.forms[id]; ok {
		return f, nil
	}
	return nil, pgx.ErrNoRows
}

func (s *stubFormRepo) List(_ context.Context, publishedOnly bool) ([]models.Form, error) {
	s.publishedOnly = publishedOnly
	return nil, nil
}

func (s *stubFormRepo) Update(context.Context, *models.Form) error { return nil }
func (s *stubFormRepo) Delete(context.Context, uuid.UUID) error   { return nil }

func (s *stubFormRepo) CreateResponse(_ context.Context, resp *models.FormResponse) error {
	resp.ID = uuid.New()
	if resp.ForwardStatus == "" {
		resp.ForwardStatus = models.ForwardStatusNone
	}
	s.responses = append(s.responses, resp)
	return nil
}

func (s *stubFormRepo) ListResponses(context.Context, uuid.UUID) ([]models.FormResponse, error) {
	return nil, nil
}

func (s *stubFormRepo) UpdateForwardStatus(_ context.Context, _ uuid.UUID, status string) error {
	s.forwardStatus = status
	return s.forwardErr
}

type stubJobRepo struct{ created []*models.Job }

func (s *stubJobRepo) Create(_ context.Context, j *models.Job) error {
	j.ID = uuid.New()
	s.created = append(s.created, j)
	return nil
}

type stubQueue struct {
	enqueued []*models.Job
	err      error
}

func (s *stubQueue) Enqueue(_ context.Context, job *models.Job) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, job)
	return nil
}

func feedbackForm(webhookURL *string) *models.Form {
	return &models.Form{
		ID:          uuid.New(),
		Title:       "Feedback",
		IsPublished: true,
		WebhookURL:  webhookURL,
		Fields: []models.FormField{
			{Name: "email", Label: "Email", Type: "email", Required: true},
			{Name: "rating", Label: "Rating", Type: "number", Required: true},
			{Name: "team", Label: "Team", Type: "select", Options: []string{"red", "blue"}},
			{Name: "notes", Label: "Notes", Type: "textarea"},
		},
	}
}

func TestCheckAnswers(t *testing.T) {
	defs := feedbackForm(nil).Fields

	tests := []struct {
		name   string
		data   map[string]any
		errors []string
	}{
		{"valid", map[string]any{"email": "a@b.co", "rating": float64(4), "team": "red"}, nil},
		{"optional omitted", map[string]any{"email": "a@b.co", "rating": float64(4)}, nil},
		{"missing required", map[string]any{"rating": float64(4)}, []string{"email"}},
		{"blank required", map[string]any{"email": "  ", "rating": float64(4)}, []string{"email"}},
		{"wrong types", map[string]any{"email": "nope", "rating": "four"}, []string{"email", "rating"}},
		{"bad option", map[string]any{"email": "a@b.co", "rating": float64(1), "team": "green"}, []string{"team"}},
		{"unknown field", map[string]any{"email": "a@b.co", "rating": float64(1), "extra": "x"}, []string{"extra"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fields := checkAnswers(defs, tc.data)
			var keys []string
			for k := range fields {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tc.errors, keys)
		})
	}
}

func TestFormHandler_SubmitQueuesForward(t *testing.T) {
	hook := "https://hooks.example.com/forms"
	form := feedbackForm(&hook)
	forms := &stubFormRepo{forms: map[uuid.UUID]*models.Form{form.ID: form}}
	jobs := &stubJobRepo{}
	queue := &stubQueue{}
	h := NewFormHandler(forms, jobs, queue, zerolog.Nop())

	userID := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/forms/x/responses",
		`{"data":{"email":"a@b.co","rating":5}}`, userID, false, map[string]string{"id": form.ID.String()})
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Len(t, forms.responses, 1)
	assert.Equal(t, models.ForwardStatusPending, forms.responses[0].ForwardStatus)
	assert.JSONEq(t, `{"email":"a@b.co","rating":5}`, string(forms.responses[0].Data))

	require.Len(t, queue.enqueued, 1)
	job := queue.enqueued[0]
	assert.Equal(t, models.JobTypeFormForward, job.Type)
	assert.Equal(t, forms.responses[0].ID, job.ReferenceID)
	assert.Equal(t, userID, job.UserID)
}

func TestFormHandler_SubmitWithoutWebhook(t *testing.T) {
	form := feedbackForm(nil)
	forms := &stubFormRepo{forms: map[uuid.UUID]*models.Form{form.ID: form}}
	queue := &stubQueue{}
	h := NewFormHandler(forms, &stubJobRepo{}, queue, zerolog.Nop())

	req := authedRequest(http.MethodPost, "/", `{"data":{"email":"a@b.co","rating":5}}`, uuid.New(), false,
		map[string]string{"id": form.ID.String()})
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, models.ForwardStatusNone, forms.responses[0].ForwardStatus)
	assert.Empty(t, queue.enqueued)
}

func TestFormHandler_SubmitQueueFailureMarksFailed(t *testing.T) {
	hook := "https://hooks.example.com/forms"
	form := feedbackForm(&hook)
	forms := &stubFormRepo{forms: map[uuid.UUID]*models.Form{form.ID: form}}
	h := NewFormHandler(forms, &stubJobRepo{}, &stubQueue{err: errors.New("redis down")}, zerolog.Nop())

	req := authedRequest(http.MethodPost, "/", `{"data":{"email":"a@b.co","rating":5}}`, uuid.New(), false,
		map[string]string{"id": form.ID.String()})
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, models.ForwardStatusFailed, forms.forwardStatus)

	var resp models.FormResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, models.ForwardStatusFailed, resp.ForwardStatus)
}

func TestFormHandler_SubmitLogsUnrecordedFailure(t *testing.T) {
	hook := "https://hooks.example.com/forms"
	form := feedbackForm(&hook)
	forms := &stubFormRepo{
		forms:      map[uuid.UUID]*models.Form{form.ID: form},
		forwardErr: errors.New("pool exhausted"),
	}
	var logs bytes.Buffer
	h := NewFormHandler(forms, &stubJobRepo{}, &stubQueue{err: errors.New("redis down")}, zerolog.New(&logs))

	req := authedRequest(http.MethodPost, "/", `{"data":{"email":"a@b.co","rating":5}}`, uuid.New(), false,
		map[string]string{"id": form.ID.String()})
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, logs.String(), "failed to mark form response failed")
	assert.Contains(t, logs.String(), "pool exhausted")
}

func TestFormHandler_SubmitInvalid(t *testing.T) {
	form := feedbackForm(nil)
	forms := &stubFormRepo{forms: map[uuid.UUID]*models.Form{form.ID: form}}
	h := NewFormHandler(forms, &stubJobRepo{}, &stubQueue{}, zerolog.Nop())

	req := authedRequest(http.MethodPost, "/", `{"data":{"rating":5}}`, uuid.New(), false,
		map[string]string{"id": form.ID.String()})
	rr := httptest.NewRecorder()
	h.Submit(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeError(t, rr).Fields, "email")
	assert.Empty(t, forms.responses)
}

func TestFormHandler_UnpublishedHiddenFromMembers(t *testing.T) {
	form := feedbackForm(nil)
	form.IsPublished = false
	forms := &stubFormRepo{forms: map[uuid.UUID]*models.Form{form.ID: form}}
	h := NewFormHandler(forms, &stubJobRepo{}, &stubQueue{}, zerolog.Nop())
	params := map[string]string{"id": form.ID.String()}

	rr := httptest.NewRecorder()
	h.Get(rr, authedRequest(http.MethodGet, "/", "", uuid.New(), false, params))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.Get(rr, authedRequest(http.MethodGet, "/", "", uuid.New(), true, params))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestFormHandler_ListPublishedOnlyForMembers(t *testing.T) {
	forms := &stubFormRepo{}
	h := NewFormHandler(forms, &stubJobRepo{}, &stubQueue{}, zerolog.Nop())

	rr := httptest.NewRecorder()
	h.List(rr, authedRequest(http.MethodGet, "/", "", uuid.New(), false, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, forms.publishedOnly)
	assert.JSONEq(t, `{"forms":[]}`, rr.Body.String())
}

func TestFormHandler_CreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"no title", `{"title":"","fields":[{"name":"a","label":"A","type":"text"}]}`, "title"},
		{"no fields", `{"title":"T","fields":[]}`, "fields"},
		{"bad type", `{"title":"T","fields":[{"name":"a","label":"A","type":"color"}]}`, "fields[0].type"},
		{"duplicate", `{"title":"T","fields":[{"name":"a","label":"A","type":"text"},{"name":"a","label":"B","type":"text"}]}`, "fields[1].name"},
		{"select without options", `{"title":"T","fields":[{"name":"a","label":"A","type":"select"}]}`, "fields[0].options"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			forms := &stubFormRepo{}
			h := NewFormHandler(forms, &stubJobRepo{}, &stubQueue{}, zerolog.Nop())

			rr := httptest.NewRecorder()
			h.Create(rr, authedRequest(http.MethodPost, "/", tc.body, uuid.New(), true, nil))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, decodeError(t, rr).Fields, tc.field)
			assert.Empty(t, forms.created)
		})
	}
}
