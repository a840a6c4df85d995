package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"chatforms-backend/internal/metrics"
	"chatforms-backend/internal/middleware"
	"chatforms-backend/internal/models"
)

type formRepository interface {
	Create(ctx context.Context, f *models.Form) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Form, error)
	List(ctx context.Context, publishedOnly bool) ([]models.Form, error)
	Update(ctx context.Context, f *models.Form) error
	Delete(ctx context.Context, id uuid.UUID) error
	CreateResponse(ctx context.Context, resp *models.FormResponse) error
	ListResponses(ctx context.Context, formID uuid.UUID) ([]models.FormResponse, error)
	UpdateForwardStatus(ctx context.Context, id uuid.UUID, status string) error
}

type jobRepository interface {
	Create(ctx context.Context, j *models.Job) error
}

type jobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

type FormHandler struct {
	forms  formRepository
	jobs   jobRepository
	queue  jobQueue
	logger zerolog.Logger
}

func NewFormHandler(forms formRepository, jobs jobRepository, queue jobQueue, logger zerolog.Logger) *FormHandler {
	return &FormHandler{forms: forms, jobs: jobs, queue: queue, logger: logger}
}

// loadForm fetches the form named in the URL. Unpublished forms are only
// visible to admins.
func (h *FormHandler) loadForm(w http.ResponseWriter, r *http.Request) (*models.Form, bool) {
	formID, ok := urlUUID(w, r, "id", "form")
	if !ok {
		return nil, false
	}

	form, err := h.forms.GetByID(r.Context(), formID)
	if err != nil || (!form.IsPublished && !middleware.IsAdmin(r.Context())) {
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load form", r))
			return nil, false
		}
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Form not found", r))
		return nil, false
	}
	return form, true
}

func (h *FormHandler) List(w http.ResponseWriter, r *http.Request) {
	forms, err := h.forms.List(r.Context(), !middleware.IsAdmin(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list forms", r))
		return
	}
	if forms == nil {
		forms = []models.Form{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"forms": forms})
}

func (h *FormHandler) Get(w http.ResponseWriter, r *http.Request) {
	form, ok := h.loadForm(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// decodeForm reads and validates a form definition.
func decodeForm(w http.ResponseWriter, r *http.Request) (*models.SaveFormRequest, bool) {
	var req models.SaveFormRequest
	if !decodeJSON(w, r, &req) {
		return nil, false
	}
	req.Title = strings.TrimSpace(req.Title)
	req.WebhookURL = blankToNil(req.WebhookURL)
	if !validateBody(w, r, req) {
		return nil, false
	}

	seen := make(map[string]bool, len(req.Fields))
	for i, f := range req.Fields {
		if seen[f.Name] {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{fmt.Sprintf("fields[%d].name", i): "Duplicate field name"}, r))
			return nil, false
		}
		seen[f.Name] = true
		if f.Type == "select" && len(f.Options) == 0 {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{fmt.Sprintf("fields[%d].options", i): "Select fields need options"}, r))
			return nil, false
		}
	}
	return &req, true
}

func (h *FormHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeForm(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	form := &models.Form{
		Title:       req.Title,
		Description: req.Description,
		Fields:      req.Fields,
		WebhookURL:  req.WebhookURL,
		IsPublished: req.IsPublished,
		CreatedBy:   &userID,
	}
	if err := h.forms.Create(r.Context(), form); err != nil {
		h.logger.Error().Err(err).Msg("failed to create form")
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create form", r))
		return
	}

	writeJSON(w, http.StatusCreated, form)
}

func (h *FormHandler) Update(w http.ResponseWriter, r *http.Request) {
	formID, ok := urlUUID(w, r, "id", "form")
	if !ok {
		return
	}
	req, ok := decodeForm(w, r)
	if !ok {
		return
	}

	form, err := h.forms.GetByID(r.Context(), formID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Form not found", r))
		return
	}

	form.Title = req.Title
	form.Description = req.Description
	form.Fields = req.Fields
	form.WebhookURL = req.WebhookURL
	form.IsPublished = req.IsPublished

	if err := h.forms.Update(r.Context(), form); err != nil {
		h.logger.Error().Err(err).Str("form_id", formID.String()).Msg("failed to update form")
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update form", r))
		return
	}

	writeJSON(w, http.StatusOK, form)
}

func (h *FormHandler) Delete(w http.ResponseWriter, r *http.Request) {
	formID, ok := urlUUID(w, r, "id", "form")
	if !ok {
		return
	}

	if err := h.forms.Delete(r.Context(), formID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Form not found", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete form", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Form deleted"})
}

// Submit stores a response and, when the form has a webhook, queues it for
// forwarding.
func (h *FormHandler) Submit(w http.ResponseWriter, r *http.Request) {
	form, ok := h.loadForm(w, r)
	if !ok {
		return
	}

	var req models.SubmitFormRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields := checkAnswers(form.Fields, req.Data); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	data, err := json.Marshal(req.Data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid form data", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	resp := &models.FormResponse{
		FormID: form.ID,
		UserID: userID,
		Data:   data,
	}
	forward := form.WebhookURL != nil
	if forward {
		resp.ForwardStatus = models.ForwardStatusPending
	}

	if err := h.forms.CreateResponse(r.Context(), resp); err != nil {
		h.logger.Error().Err(err).Str("form_id", form.ID.String()).Msg("failed to store form response")
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to submit form", r))
		return
	}
	metrics.FormSubmissions.WithLabelValues(strconv.FormatBool(forward)).Inc()

	if forward {
		if err := h.enqueueForward(r.Context(), userID, resp.ID); err != nil {
			// The response is stored; only its delivery is lost.
			h.logger.Error().Err(err).Str("response_id", resp.ID.String()).Msg("failed to queue form forward")
			if err := h.forms.UpdateForwardStatus(r.Context(), resp.ID, models.ForwardStatusFailed); err != nil {
				h.logger.Warn().Err(err).Str("response_id", resp.ID.String()).Msg("failed to mark form response failed")
			}
			resp.ForwardStatus = models.ForwardStatusFailed
		}
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *FormHandler) enqueueForward(ctx context.Context, userID, responseID uuid.UUID) error {
	job := &models.Job{
		UserID:      userID,
		Type:        models.JobTypeFormForward,
		ReferenceID: responseID,
	}
	if err := h.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return h.queue.Enqueue(ctx, job)
}

func (h *FormHandler) ListResponses(w http.ResponseWriter, r *http.Request) {
	formID, ok := urlUUID(w, r, "id", "form")
	if !ok {
		return
	}

	responses, err := h.forms.ListResponses(r.Context(), formID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list responses", r))
		return
	}
	if responses == nil {
		responses = []models.FormResponse{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"responses": responses})
}

// checkAnswers validates submitted data against the form's field definitions.
// Unknown keys are rejected so stored responses match the form.
func checkAnswers(defs []models.FormField, data map[string]any) map[string]string {
	fields := make(map[string]string)
	known := make(map[string]models.FormField, len(defs))
	for _, f := range defs {
		known[f.Name] = f
		v, present := data[f.Name]
		if f.Required && (!present || isBlank(v)) {
			fields[f.Name] = "This field is required"
			continue
		}
		if !present || isBlank(v) {
			continue
		}
		if msg := checkAnswer(f, v); msg != "" {
			fields[f.Name] = msg
		}
	}
	for k := range data {
		if _, ok := known[k]; !ok {
			fields[k] = "Unknown field"
		}
	}
	return fields
}

func checkAnswer(f models.FormField, v any) string {
	switch f.Type {
	case "number":
		if _, ok := v.(float64); !ok {
			return "Must be a number"
		}
	case "checkbox":
		if _, ok := v.(bool); !ok {
			return "Must be true or false"
		}
	case "email":
		s, _ := v.(string)
		if validate.Var(s, "email") != nil {
			return "Must be a valid email"
		}
	case "date":
		s, _ := v.(string)
		if validate.Var(s, "datetime=2006-01-02") != nil {
			return "Must be a date (YYYY-MM-DD)"
		}
	case "select":
		s, _ := v.(string)
		for _, opt := range f.Options {
			if opt == s {
				return ""
			}
		}
		return "Must be one of the listed options"
	default:
		if _, ok := v.(string); !ok {
			return "Must be text"
		}
	}
	return ""
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}
