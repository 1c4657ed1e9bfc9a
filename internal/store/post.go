package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/microblog-app/apiserver/types"
)

// PostRepository handles persistence for posts and likes.
type PostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

// postViewColumns decorates each post with the author name, like count,
// and whether the viewer ($1) has liked it.
const postViewColumns = `
	p.id, p.title, p.content, p.user_id, p.created_at, p.updated_at,
	u.name AS author_name,
	(SELECT COUNT(*) FROM likes WHERE post_id = p.id) AS likes_count,
	EXISTS(SELECT 1 FROM likes WHERE post_id = p.id AND user_id = $1) AS is_liked`

// List returns all posts newest-first, decorated for the viewer. When
// query is non-empty, only posts whose title or content contains it
// (case-insensitive) are returned.
func (r *PostRepository) List(ctx context.Context, viewerID int, query string) ([]types.PostView, error) {
	sqlQuery := `
		SELECT ` + postViewColumns + `
		FROM posts p
		JOIN users u ON p.user_id = u.id`
	args := []any{viewerID}

	if query != "" {
		sqlQuery += ` WHERE p.title ILIKE $2 OR p.content ILIKE $2`
		args = append(args, "%"+query+"%")
	}

	sqlQuery += ` ORDER BY p.created_at DESC`

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]types.PostView, 0)
	for rows.Next() {
		post, err := scanPostView(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *PostRepository) Get(ctx context.Context, viewerID, id int) (types.PostView, error) {
	query := `
		SELECT ` + postViewColumns + `
		FROM posts p
		JOIN users u ON p.user_id = u.id
		WHERE p.id = $2`
	post, err := scanPostView(r.db.QueryRowContext(ctx, query, viewerID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PostView{}, ErrNotFound
		}
		return types.PostView{}, err
	}
	return post, nil
}

func (r *PostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	now := time.Now()
	post.CreatedAt = now
	post.UpdatedAt = now

	const query = `
		INSERT INTO posts (title, content, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		post.Title,
		post.Content,
		post.UserID,
		post.CreatedAt,
		post.UpdatedAt,
	).Scan(&post.ID); err != nil {
		return types.Post{}, err
	}
	return post, nil
}

// Update rewrites title and content. The owner column is never touched.
func (r *PostRepository) Update(ctx context.Context, post types.Post) (types.Post, error) {
	post.UpdatedAt = time.Now()

	const query = `
		UPDATE posts
		SET title = $1,
			content = $2,
			updated_at = $3
		WHERE id = $4
		RETURNING user_id, created_at`
	err := r.db.QueryRowContext(
		ctx,
		query,
		post.Title,
		post.Content,
		post.UpdatedAt,
		post.ID,
	).Scan(&post.UserID, &post.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Post{}, ErrNotFound
		}
		return types.Post{}, err
	}
	return post, nil
}

func (r *PostRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM posts WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// OwnerID returns the owning user of a post, or ErrNotFound.
func (r *PostRepository) OwnerID(ctx context.Context, id int) (int, error) {
	const query = `SELECT user_id FROM posts WHERE id = $1`
	var ownerID int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return ownerID, nil
}

// ToggleLike removes the like for (postID, userID) if present, else
// inserts it, and reports whether the post is liked afterwards. Both
// statements are idempotent per pair: the delete keys on the pair and
// the insert relies on the unique constraint, so concurrent toggles
// cannot produce duplicate rows.
func (r *PostRepository) ToggleLike(ctx context.Context, postID, userID int) (bool, error) {
	const deleteQuery = `DELETE FROM likes WHERE post_id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, deleteQuery, postID, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return false, nil
	}

	const insertQuery = `
		INSERT INTO likes (post_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (post_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insertQuery, postID, userID); err != nil {
		return false, err
	}
	return true, nil
}

// LikesCount returns the number of likes on a post.
func (r *PostRepository) LikesCount(ctx context.Context, postID int) (int, error) {
	const query = `SELECT COUNT(*) FROM likes WHERE post_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, postID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostView(row rowScanner) (types.PostView, error) {
	var post types.PostView
	err := row.Scan(
		&post.ID,
		&post.Title,
		&post.Content,
		&post.UserID,
		&post.CreatedAt,
		&post.UpdatedAt,
		&post.AuthorName,
		&post.LikesCount,
		&post.IsLiked,
	)
	return post, err
}
