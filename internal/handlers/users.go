package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"chatforms-backend/internal/middleware"
	"chatforms-backend/internal/models"
)

type userRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdateAdmin(ctx context.Context, userID uuid.UUID, roleID *uuid.UUID, isActive *bool) error
}

type roleRepository interface {
	List(ctx context.Context) ([]models.Role, error)
	Create(ctx context.Context, role *models.Role) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// User & role administration

type UserHandler struct {
	userRepo userRepository
	roleRepo roleRepository
	sessions sessionEnder
}

func NewUserHandler(userRepo userRepository, roleRepo roleRepository, sessions sessionEnder) *UserHandler {
	return &UserHandler{userRepo: userRepo, roleRepo: roleRepo, sessions: sessions}
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":     user,
		"is_admin": middleware.IsAdmin(r.Context()),
	})
}

// UpdateMe edits the display name and avatar copied onto new messages.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateBody(w, r, req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
		return
	}

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{"full_name": "This field is required"}, r))
			return
		}
		user.FullName = name
	}
	if req.AvatarURL != nil {
		user.AvatarURL = blankToNil(req.AvatarURL)
	}

	if err := h.userRepo.UpdateProfile(r.Context(), user); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update profile", r))
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userRepo.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list users", r))
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// Update changes a user's role or active flag. Deactivating a user drops
// their in-memory session.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlUUID(w, r, "id", "user")
	if !ok {
		return
	}

	var req models.UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RoleID == nil && req.IsActive == nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Nothing to update", r))
		return
	}
	if req.IsActive != nil && !*req.IsActive && userID == middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "You cannot deactivate yourself", r))
		return
	}

	if err := h.userRepo.UpdateAdmin(r.Context(), userID, req.RoleID, req.IsActive); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
		case isForeignKeyViolation(err):
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{"role_id": "Unknown role"}, r))
		default:
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update user", r))
		}
		return
	}

	if req.IsActive != nil && !*req.IsActive {
		h.sessions.End(userID)
	}

	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load user", r))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roleRepo.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list roles", r))
		return
	}
	if roles == nil {
		roles = []models.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

func (h *UserHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.ToLower(strings.TrimSpace(req.Name))
	if !validateBody(w, r, req) {
		return
	}

	role := &models.Role{Name: req.Name, Description: req.Description}
	if err := h.roleRepo.Create(r.Context(), role); err != nil {
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "Role already exists", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create role", r))
		return
	}

	writeJSON(w, http.StatusCreated, role)
}

func (h *UserHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := urlUUID(w, r, "id", "role")
	if !ok {
		return
	}

	if err := h.roleRepo.Delete(r.Context(), roleID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Role not found", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete role", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Role deleted"})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
