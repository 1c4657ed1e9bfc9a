package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/microblog-app/apiserver/internal/authz"
	"github.com/microblog-app/apiserver/internal/services"
	"github.com/microblog-app/apiserver/internal/storage"
	"github.com/microblog-app/apiserver/internal/store"
	"github.com/microblog-app/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminRole         = "admin"
	formFieldAvatar   = "avatar"
	maxAvatarMemory   = 8 << 20
	maxAvatarBytes    = 8 << 20
	avatarContentType = "application/octet-stream"
)

// UserHandler provides HTTP handlers for user administration.
type UserHandler struct {
	userService *services.UserService
	avatars     *storage.AvatarStore
}

// NewUserHandler constructs a handler with the provided dependencies.
// avatars may be nil when no object storage is configured.
func NewUserHandler(userService *services.UserService, avatars *storage.AvatarStore) *UserHandler {
	return &UserHandler{
		userService: userService,
		avatars:     avatars,
	}
}

// UserRouter registers user routes on the given router. Reads are open
// to any authenticated identity; mutations are declared admin-only.
func UserRouter(
	r chi.Router,
	userService *services.UserService,
	avatars *storage.AvatarStore,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(userService, avatars)
	adminOnly := RequireRoles(authz.Allow(adminRole))

	r.Use(authMiddleware)
	r.Get("/", handler.ListUsers)
	r.With(adminOnly).Post("/", handler.CreateUser)
	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", handler.GetUser)
		r.With(adminOnly).Put("/", handler.UpdateUser)
		r.With(adminOnly).Delete("/", handler.DeleteUser)
		if handler.avatars != nil {
			r.Post("/avatar", handler.UploadAvatar)
			r.Get("/avatar", handler.GetAvatar)
		}
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to fetch user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// CreateUser creates an account on behalf of an admin. The payload may
// name a role; it defaults to "user".
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Name, email, and password are required")
		return
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = defaultUserRole
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	user, err := h.userService.Create(r.Context(), types.User{
		Name:         req.Name,
		Email:        req.Email,
		Role:         role,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusBadRequest, "Email already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// UpdateUser rewrites name, email, and optionally role and password.
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UserUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Name and email are required")
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to fetch user")
		return
	}

	user.Name = req.Name
	user.Email = req.Email
	if role := strings.TrimSpace(req.Role); role != "" {
		user.Role = role
	}
	if req.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to update user")
			return
		}
		user.PasswordHash = string(hashed)
	}

	updated, err := h.userService.Update(r.Context(), user)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusBadRequest, "Email already exists")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to update user")
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete user")
		return
	}

	if err := h.userService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete user")
		return
	}

	// Best-effort cleanup: the account is gone either way, a stale
	// avatar object must not fail the request.
	if h.avatars != nil && user.AvatarKey != "" {
		if err := h.avatars.Delete(r.Context(), id); err != nil {
			log.Printf("storage: delete avatar for user %d: %v", id, err)
		}
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("User deleted with ID: %d", id)})
}

// UploadAvatar stores an avatar for a user. Users may replace their
// own avatar; admins may replace anyone's.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := authz.SelfOrAdmin(identity, id); err != nil {
		writeError(w, http.StatusForbidden, "Not authorized to change this avatar")
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to fetch user")
		return
	}

	if err := r.ParseMultipartForm(maxAvatarMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldAvatar)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Avatar file is required")
		return
	}
	data, err := readFileLimited(file, maxAvatarBytes)
	_ = file.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = avatarContentType
	}

	if err := h.avatars.Put(r.Context(), id, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store avatar")
		return
	}

	user.AvatarKey = h.avatars.Key(id)
	if _, err := h.userService.Update(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store avatar")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Avatar updated"})
}

// GetAvatar streams a user's avatar.
func (h *UserHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to fetch user")
		return
	}
	if user.AvatarKey == "" {
		writeError(w, http.StatusNotFound, "Avatar not found")
		return
	}

	reader, err := h.avatars.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Avatar not found")
		return
	}
	defer reader.Close()

	// Sniff the type from the object itself; the stored key carries no
	// content-type metadata.
	head := make([]byte, 512)
	n, err := io.ReadFull(reader, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		writeError(w, http.StatusInternalServerError, "Failed to read avatar")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(head[:n]))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(head[:n])
	_, _ = io.Copy(w, reader)
}

// UserUpsertRequest is the JSON payload for admin create and update.
type UserUpsertRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func parseUserID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("Invalid user id")
	}
	return id, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("Failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("Uploaded file too large")
	}
	return data, nil
}
