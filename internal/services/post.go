package services

import (
	"context"
	"log"

	"github.com/microblog-app/apiserver/internal/events"
	"github.com/microblog-app/apiserver/types"
)

// PostRepository defines persistence operations for posts and likes.
type PostRepository interface {
	List(ctx context.Context, viewerID int, query string) ([]types.PostView, error)
	Get(ctx context.Context, viewerID, id int) (types.PostView, error)
	Create(ctx context.Context, post types.Post) (types.Post, error)
	Update(ctx context.Context, post types.Post) (types.Post, error)
	Delete(ctx context.Context, id int) error
	OwnerID(ctx context.Context, id int) (int, error)
	ToggleLike(ctx context.Context, postID, userID int) (bool, error)
}

// EventPublisher publishes activity events.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// PostService encapsulates post use-cases and emits activity events.
type PostService struct {
	repo      PostRepository
	publisher EventPublisher
}

// NewPostService constructs a PostService. publisher may be nil to
// disable activity events.
func NewPostService(repo PostRepository, publisher EventPublisher) *PostService {
	return &PostService{repo: repo, publisher: publisher}
}

func (s *PostService) List(ctx context.Context, viewerID int, query string) ([]types.PostView, error) {
	return s.repo.List(ctx, viewerID, query)
}

func (s *PostService) Get(ctx context.Context, viewerID, id int) (types.PostView, error) {
	return s.repo.Get(ctx, viewerID, id)
}

func (s *PostService) Create(ctx context.Context, post types.Post) (types.Post, error) {
	created, err := s.repo.Create(ctx, post)
	if err != nil {
		return types.Post{}, err
	}
	s.publish(ctx, events.Event{
		Type:    events.TypePostCreated,
		PostID:  created.ID,
		ActorID: created.UserID,
	})
	return created, nil
}

func (s *PostService) Update(ctx context.Context, post types.Post) (types.Post, error) {
	return s.repo.Update(ctx, post)
}

func (s *PostService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

// OwnerOf resolves the owning user of a post. Used as the loader for
// ownership checks on update and delete.
func (s *PostService) OwnerOf(ctx context.Context, id int) (int, error) {
	return s.repo.OwnerID(ctx, id)
}

// ToggleLike flips the like state for (postID, userID) and reports the
// resulting state.
func (s *PostService) ToggleLike(ctx context.Context, postID, userID int) (bool, error) {
	liked, err := s.repo.ToggleLike(ctx, postID, userID)
	if err != nil {
		return false, err
	}
	eventType := events.TypePostUnliked
	if liked {
		eventType = events.TypePostLiked
	}
	s.publish(ctx, events.Event{
		Type:    eventType,
		PostID:  postID,
		ActorID: userID,
	})
	return liked, nil
}

// publish is best-effort: a broker failure must not fail the request.
func (s *PostService) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("events: publish %s for post %d: %v", event.Type, event.PostID, err)
	}
}
