package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microblog-app/apiserver/internal/handlers"
	"github.com/microblog-app/apiserver/internal/services"
	"github.com/microblog-app/apiserver/internal/storage"
	"github.com/microblog-app/apiserver/internal/store"
	"github.com/microblog-app/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

// ---------------------------------------------------------------------------
// In-memory repositories
// ---------------------------------------------------------------------------

type memUserRepo struct {
	mu     sync.Mutex
	users  map[int]types.User
	nextID int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int]types.User)}
}

var _ services.UserRepository = (*memUserRepo)(nil)

func (m *memUserRepo) List(ctx context.Context) ([]types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]types.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *memUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	m.nextID++
	user.ID = m.nextID
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.ID] = user
	return user, nil
}

func (m *memUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	for _, existing := range m.users {
		if existing.ID != user.ID && existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.UpdatedAt = time.Now()
	m.users[user.ID] = user
	return user, nil
}

func (m *memUserRepo) Delete(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

type likeKey struct {
	postID int
	userID int
}

type memPostRepo struct {
	mu     sync.Mutex
	posts  map[int]types.Post
	likes  map[likeKey]bool
	nextID int
	users  *memUserRepo
}

func newMemPostRepo(users *memUserRepo) *memPostRepo {
	return &memPostRepo{
		posts: make(map[int]types.Post),
		likes: make(map[likeKey]bool),
		users: users,
	}
}

var _ services.PostRepository = (*memPostRepo)(nil)

func (m *memPostRepo) List(ctx context.Context, viewerID int, query string) ([]types.PostView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]types.PostView, 0, len(m.posts))
	for _, post := range m.posts {
		if query != "" &&
			!strings.Contains(strings.ToLower(post.Title), strings.ToLower(query)) &&
			!strings.Contains(strings.ToLower(post.Content), strings.ToLower(query)) {
			continue
		}
		views = append(views, m.viewLocked(post, viewerID))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].CreatedAt.After(views[j].CreatedAt) })
	return views, nil
}

func (m *memPostRepo) Get(ctx context.Context, viewerID, id int) (types.PostView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[id]
	if !ok {
		return types.PostView{}, store.ErrNotFound
	}
	return m.viewLocked(post, viewerID), nil
}

func (m *memPostRepo) Create(ctx context.Context, post types.Post) (types.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	post.ID = m.nextID
	now := time.Now()
	post.CreatedAt = now
	post.UpdatedAt = now
	m.posts[post.ID] = post
	return post, nil
}

func (m *memPostRepo) Update(ctx context.Context, post types.Post) (types.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.posts[post.ID]
	if !ok {
		return types.Post{}, store.ErrNotFound
	}
	existing.Title = post.Title
	existing.Content = post.Content
	existing.UpdatedAt = time.Now()
	m.posts[post.ID] = existing
	return existing, nil
}

func (m *memPostRepo) Delete(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.posts[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

func (m *memPostRepo) OwnerID(ctx context.Context, id int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	return post.UserID, nil
}

func (m *memPostRepo) ToggleLike(ctx context.Context, postID, userID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := likeKey{postID: postID, userID: userID}
	if m.likes[key] {
		delete(m.likes, key)
		return false, nil
	}
	m.likes[key] = true
	return true, nil
}

func (m *memPostRepo) likesCount(postID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for key := range m.likes {
		if key.postID == postID {
			count++
		}
	}
	return count
}

func (m *memPostRepo) viewLocked(post types.Post, viewerID int) types.PostView {
	view := types.PostView{Post: post}
	if m.users != nil {
		if author, ok := m.users.users[post.UserID]; ok {
			view.AuthorName = author.Name
		}
	}
	for key := range m.likes {
		if key.postID == post.ID {
			view.LikesCount++
		}
	}
	view.IsLiked = m.likes[likeKey{postID: post.ID, userID: viewerID}]
	return view
}

type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: make(map[string][]byte)}
}

var _ storage.ObjectStorage = (*memObjectStore)(nil)

func (s *memObjectStore) EnsureBucket(ctx context.Context) error {
	return nil
}

func (s *memObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memObjectStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memObjectStore) Bucket() string {
	return "test-bucket"
}

func (s *memObjectStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// ---------------------------------------------------------------------------
// Router and request helpers
// ---------------------------------------------------------------------------

func newTestRouter(t *testing.T) (*chi.Mux, *memUserRepo, *memPostRepo) {
	t.Helper()
	router, userRepo, postRepo := buildTestRouter(nil)
	return router, userRepo, postRepo
}

// newAvatarTestRouter wires an in-memory object store so the avatar
// routes are registered.
func newAvatarTestRouter(t *testing.T) (*chi.Mux, *memUserRepo, *memPostRepo, *memObjectStore) {
	t.Helper()
	objects := newMemObjectStore()
	router, userRepo, postRepo := buildTestRouter(storage.NewAvatarStore(objects))
	return router, userRepo, postRepo, objects
}

func buildTestRouter(avatars *storage.AvatarStore) (*chi.Mux, *memUserRepo, *memPostRepo) {
	userRepo := newMemUserRepo()
	postRepo := newMemPostRepo(userRepo)
	userService := services.NewUserService(userRepo)
	postService := services.NewPostService(postRepo, nil)
	authMiddleware := handlers.RequireAuth(testSecret)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, testSecret)
	})
	router.Route("/posts", func(r chi.Router) {
		handlers.PostRouter(r, postService, authMiddleware)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService, avatars, authMiddleware)
	})
	return router, userRepo, postRepo
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, value any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(value); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func registerUser(t *testing.T, router http.Handler, name, email, password string) handlers.AuthResponse {
	t.Helper()

	rec := doRequest(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", email, rec.Code, rec.Body.String())
	}

	var resp handlers.AuthResponse
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Fatalf("register %s: missing token", email)
	}
	return resp
}

// seedAdmin creates an admin account directly in the repository and
// logs in through the API to obtain its token.
func seedAdmin(t *testing.T, router http.Handler, userRepo *memUserRepo) handlers.AuthResponse {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte("adminpw"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash admin password: %v", err)
	}
	_, err = userRepo.Create(context.Background(), types.User{
		Name:         "Root",
		Email:        "root@example.com",
		Role:         "admin",
		PasswordHash: string(hashed),
	})
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	rec := doRequest(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "root@example.com",
		"password": "adminpw",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin login: status %d: %s", rec.Code, rec.Body.String())
	}

	var resp handlers.AuthResponse
	decodeBody(t, rec, &resp)
	return resp
}
