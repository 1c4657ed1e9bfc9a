package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/microblog-app/apiserver/types"
)

func TestCreatePostSetsOwner(t *testing.T) {
	router, _, _ := newTestRouter(t)
	alice := registerUser(t, router, "alice", "a@x.com", "pw")

	rec := doRequest(t, router, http.MethodPost, "/posts", alice.Token, map[string]string{
		"title":   "t",
		"content": "c",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}

	var created types.Post
	decodeBody(t, rec, &created)
	if created.UserID != alice.User.ID {
		t.Fatalf("post.user_id = %d, want %d", created.UserID, alice.User.ID)
	}
	if created.Title != "t" || created.Content != "c" {
		t.Fatalf("unexpected post: %+v", created)
	}
}

func TestCreatePostValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)
	alice := registerUser(t, router, "alice", "a@x.com", "pw")

	rec := doRequest(t, router, http.MethodPost, "/posts", alice.Token, map[string]string{
		"title": "no content",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400 for missing content", rec.Code)
	}
}

func TestGetPostNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)
	alice := registerUser(t, router, "alice", "a@x.com", "pw")

	rec := doRequest(t, router, http.MethodGet, "/posts/999", alice.Token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}

func TestUpdatePostByNonOwnerReturns403(t *testing.T) {
	router, _, postRepo := newTestRouter(t)
	alice := registerUser(t, router, "alice", "a@x.com", "pw")
	bob := registerUser(t, router, "bob", "b@x.com", "pw")

	var created types.Post
	rec := doRequest(t, router, http.MethodPost, "/posts", alice.Token, map[string]string{
		"title":   "t",
		"content": "c",
	})
	decodeBody(t, rec, &created)

	path := fmt.Sprintf("/posts/%d", created.ID)
	update := doRequest(t, router, http.MethodPut, path, bob.Token, map[string]string{
		"title":   "hijacked",
		"content": "hijacked",
	})
	if update.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", update.Code)
	}

	var resp struct {
		Error string `json:"error"`
	}
	decodeBody(t, update, &resp)
	if resp.Error != "Not authorized to edit this post" {
		t.Fatalf("error = %q, want %q", resp.Error, "Not authorized to edit this post")
	}

	// The underlying resource must be unchanged.
	stored, err := postRepo.Get(context.Background(), alice.User.ID, created.ID)
	if err != nil {
		t.Fatalf("reload post: %v", err)
	}
	if stored.Title != "t" || stored.Content != "c" {
		t.Fatalf("post mutated by forbidden update: %+v", stored.Post)
	}
}

func TestUpdatePostByOwner(t *testing.T) {
	router, _, _ := newTestRouter(t)
	alice := registerUser(t, router, "alice", "a@x.com", "pw")

	var created types.Post
	rec := doRequest(t, router, http.MethodPost, "/posts", alice.Token, map[string]string{
		"title":   "t",
		"content": "c",
	})
	decodeBody(t, rec, &created)

	path := fmt.Sprintf("/posts/%d", created.ID)
	update := doRequest(t, router, http.MethodPut, path, alice.Token, map[string]string{
		"title":   "t2",
		"content": "c2",
	})
	if update.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", update.Code, update.Body.String())
	}

	var updated types.Post
	decodeBody(t, update, &updated)
	if updated.Title != "t2" || updated.Content != "c2" {
		t.Fatalf("unexpected updated post: %+v", updated)
	}
	if updated.UserID != alice.User.ID {
		t.Fatalf("owner changed on update: %d", updated.UserID)
	}
}

func TestUpdateNonexistentPostReturns404(t *testing.T) {
	router, _, _ := newTestRouter(t)
	alice := registerUser(t, router, "alice", "a@x.com", "pw")

	rec := doRequest(t, router, http.MethodPut, "/posts/999", alice.Token, map[string]string{
		"title":   "t",
		"content": "c",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404 (not 403) for missing post", rec.Code)
	}
}

func TestDeletePostByNonOwnerReturns403(t *testing.T) {
	router, _, postRepo := newTestRouter(t)
	alice := registerUser(t, router, "alice", "a@x.com", "pw")
	bob := registerUser(t, router, "bob", "b@x.com", "pw")

	var created types.Post
	rec := doRequest(t, router, http.MethodPost, "/posts", alice.Token, map[string]string{
		"title":   "t",
		"content": "c",
	})
	decodeBody(t, rec, &created)

	path := fmt.Sprintf("/posts/%d", created.ID)
	del := doRequest(t, router, http.MethodDelete, path, bob.Token, nil)
	if del.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", del.Code)
	}

	if _, err := postRepo.Get(context.Background(), alice.User.ID, created.ID); err != nil {
		t.Fatalf("post removed by forbidden delete: %v", err)
	}

	ownerDel := doRequest(t, router, http.MethodDelete, path, alice.Token, nil)
	if ownerDel.Code != http.StatusOK {
		t.Fatalf("owner delete status %d: %s", ownerDel.Code, ownerDel.Body.String())
	}

	gone := doRequest(t, router, http.MethodGet, path, alice.Token, nil)
	if gone.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404 after delete", gone.Code)
	}
}

func TestToggleLike(t *testing.T) {
	router, _, postRepo := newTestRouter(t)
	alice := registerUser(t, router, "alice", "a@x.com", "pw")

	var created types.Post
	rec := doRequest(t, router, http.MethodPost, "/posts", alice.Token, map[string]string{
		"title":   "t",
		"content": "c",
	})
	decodeBody(t, rec, &created)

	likePath := fmt.Sprintf("/posts/%d/like", created.ID)

	first := doRequest(t, router, http.MethodPost, likePath, alice.Token, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first toggle status %d: %s", first.Code, first.Body.String())
	}
	var resp struct {
		Message string `json:"message"`
	}
	decodeBody(t, first, &resp)
	if resp.Message != "Post liked" {
		t.Fatalf("message = %q, want %q", resp.Message, "Post liked")
	}
	if count := postRepo.likesCount(created.ID); count != 1 {
		t.Fatalf("likes = %d after one toggle, want 1", count)
	}

	second := doRequest(t, router, http.MethodPost, likePath, alice.Token, nil)
	decodeBody(t, second, &resp)
	if resp.Message != "Post unliked" {
		t.Fatalf("message = %q, want %q", resp.Message, "Post unliked")
	}
	if count := postRepo.likesCount(created.ID); count != 0 {
		t.Fatalf("likes = %d after double toggle, want 0", count)
	}
}

func TestToggleLikeOnMissingPostReturns404(t *testing.T) {
	router, _, _ := newTestRouter(t)
	alice := registerUser(t, router, "alice", "a@x.com", "pw")

	rec := doRequest(t, router, http.MethodPost, "/posts/999/like", alice.Token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}

func TestListPostsDecoratesForViewer(t *testing.T) {
	router, _, _ := newTestRouter(t)
	alice := registerUser(t, router, "alice", "a@x.com", "pw")
	bob := registerUser(t, router, "bob", "b@x.com", "pw")

	var created types.Post
	rec := doRequest(t, router, http.MethodPost, "/posts", alice.Token, map[string]string{
		"title":   "hello world",
		"content": "c",
	})
	decodeBody(t, rec, &created)

	likePath := fmt.Sprintf("/posts/%d/like", created.ID)
	doRequest(t, router, http.MethodPost, likePath, bob.Token, nil)

	list := doRequest(t, router, http.MethodGet, "/posts", bob.Token, nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list status %d: %s", list.Code, list.Body.String())
	}
	var posts []types.PostView
	decodeBody(t, list, &posts)
	if len(posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(posts))
	}
	if posts[0].AuthorName != "alice" || posts[0].LikesCount != 1 || !posts[0].IsLiked {
		t.Fatalf("unexpected view: %+v", posts[0])
	}

	// The same list viewed by alice is not marked liked.
	aliceList := doRequest(t, router, http.MethodGet, "/posts", alice.Token, nil)
	decodeBody(t, aliceList, &posts)
	if posts[0].IsLiked {
		t.Fatal("alice has not liked the post")
	}
}

func TestListPostsSearch(t *testing.T) {
	router, _, _ := newTestRouter(t)
	alice := registerUser(t, router, "alice", "a@x.com", "pw")

	doRequest(t, router, http.MethodPost, "/posts", alice.Token, map[string]string{
		"title": "go concurrency", "content": "channels",
	})
	doRequest(t, router, http.MethodPost, "/posts", alice.Token, map[string]string{
		"title": "gardening", "content": "tomatoes",
	})

	rec := doRequest(t, router, http.MethodGet, "/posts?query=concurrency", alice.Token, nil)
	var posts []types.PostView
	decodeBody(t, rec, &posts)
	if len(posts) != 1 || posts[0].Title != "go concurrency" {
		t.Fatalf("unexpected search result: %+v", posts)
	}
}
