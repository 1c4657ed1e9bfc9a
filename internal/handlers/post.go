package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/microblog-app/apiserver/internal/authz"
	"github.com/microblog-app/apiserver/internal/services"
	"github.com/microblog-app/apiserver/internal/store"
	"github.com/microblog-app/apiserver/types"
)

// PostHandler provides HTTP handlers for posts and likes.
type PostHandler struct {
	postService *services.PostService
}

// NewPostHandler constructs a handler with the provided service.
func NewPostHandler(postService *services.PostService) *PostHandler {
	return &PostHandler{postService: postService}
}

// PostRouter registers post routes on the given router. Every route
// requires authentication; update and delete additionally require
// ownership, checked in the handler.
func PostRouter(r chi.Router, postService *services.PostService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewPostHandler(postService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListPosts)
	r.Post("/", handler.CreatePost)
	r.Route("/{postID}", func(r chi.Router) {
		r.Get("/", handler.GetPost)
		r.Put("/", handler.UpdatePost)
		r.Delete("/", handler.DeletePost)
		r.Post("/like", handler.ToggleLike)
	})
}

// ListPosts returns all posts newest-first, filtered by the optional
// ?query= substring over title and content.
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	posts, err := h.postService.List(r.Context(), identity.ID, query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list posts")
		return
	}

	writeJSON(w, http.StatusOK, posts)
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := parsePostID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := h.postService.Get(r.Context(), identity.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Post not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to fetch post")
		return
	}

	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	req, err := decodePostRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.postService.Create(r.Context(), types.Post{
		Title:   req.Title,
		Content: req.Content,
		UserID:  identity.ID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create post")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// UpdatePost rewrites a post's title and content. Only the owner may
// update; a missing post reports 404 before ownership is considered.
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := parsePostID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := decodePostRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := authz.RequireOwner(r.Context(), h.postService.OwnerOf, id, identity); err != nil {
		writeOwnershipError(w, err, "Not authorized to edit this post")
		return
	}

	updated, err := h.postService.Update(r.Context(), types.Post{
		ID:      id,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		// The post can vanish between the ownership read and the
		// write; surface that as a second not-found.
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Post not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update post")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeletePost removes a post. Only the owner may delete.
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := parsePostID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := authz.RequireOwner(r.Context(), h.postService.OwnerOf, id, identity); err != nil {
		writeOwnershipError(w, err, "Not authorized to delete this post")
		return
	}

	if err := h.postService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Post not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete post")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Post deleted with ID: %d", id)})
}

// ToggleLike flips the requester's like on a post: delete if present,
// insert if absent.
func (h *PostHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := parsePostID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Liking requires the target to exist, but not to be owned.
	if _, err := h.postService.OwnerOf(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Post not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to toggle like")
		return
	}

	liked, err := h.postService.ToggleLike(r.Context(), id, identity.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to toggle like")
		return
	}

	message := "Post unliked"
	if liked {
		message = "Post liked"
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: message})
}

// PostRequest is the JSON payload for create and update.
type PostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func decodePostRequest(r *http.Request) (PostRequest, error) {
	var req PostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return PostRequest{}, errors.New("Invalid request")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	if req.Title == "" || req.Content == "" {
		return PostRequest{}, errors.New("Title and content are required")
	}
	return req, nil
}

func parsePostID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "postID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("Invalid post id")
	}
	return id, nil
}

func writeOwnershipError(w http.ResponseWriter, err error, forbiddenMessage string) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, authz.ErrNotFound):
		writeError(w, http.StatusNotFound, "Post not found")
	case errors.Is(err, authz.ErrForbidden):
		writeError(w, http.StatusForbidden, forbiddenMessage)
	default:
		writeError(w, http.StatusInternalServerError, "Failed to authorize request")
	}
}
