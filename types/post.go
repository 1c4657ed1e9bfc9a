package types

import "time"

// Post is a blog entry owned by a single user. The owner is fixed at
// creation time; only title and content are mutable.
type Post struct {
	ID        int       `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	UserID    int       `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PostView is a Post decorated with reader-relative metadata: the
// author's display name, the like count, and whether the requesting
// user has liked it.
type PostView struct {
	Post
	AuthorName string `json:"author_name" db:"author_name"`
	LikesCount int    `json:"likes_count" db:"likes_count"`
	IsLiked    bool   `json:"is_liked" db:"is_liked"`
}

// Like marks that a user liked a post. At most one Like exists per
// (post, user) pair.
type Like struct {
	ID     int `json:"id" db:"id"`
	PostID int `json:"post_id" db:"post_id"`
	UserID int `json:"user_id" db:"user_id"`
}
