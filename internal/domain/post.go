package domain

import "time"

// PostStatus enumerates the lifecycle of a blog post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPublished PostStatus = "published"
	PostStatusArchived  PostStatus = "archived"
)

// Valid reports whether s is a known status.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusScheduled, PostStatusPublished, PostStatusArchived:
		return true
	}
	return false
}

// Post is a document of the blog_posts collection.
type Post struct {
	ID            string         `json:"id" firestore:"-"`
	UserID        string         `json:"userId" firestore:"userId"`
	Title         string         `json:"title" firestore:"title"`
	Slug          string         `json:"slug" firestore:"slug"`
	Content       string         `json:"content" firestore:"content"`
	Excerpt       string         `json:"excerpt" firestore:"excerpt"`
	Status        PostStatus     `json:"status" firestore:"status"`
	Tags          []string       `json:"tags" firestore:"tags"`
	CoverImageURL string         `json:"coverImageUrl,omitempty" firestore:"coverImageUrl"`
	PublishAt     *time.Time     `json:"publishAt,omitempty" firestore:"publishAt"`
	PublishedAt   *time.Time     `json:"publishedAt,omitempty" firestore:"publishedAt"`
	WordPress     *WordPressSync `json:"wordpress,omitempty" firestore:"wordpress"`
	Threads       *ThreadsShare  `json:"threads,omitempty" firestore:"threads"`
	CreatedAt     time.Time      `json:"createdAt" firestore:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt" firestore:"updatedAt"`
}

// WordPressSync records the remote copy of a post.
type WordPressSync struct {
	PostID   int64     `json:"postId" firestore:"postId"`
	Link     string    `json:"link" firestore:"link"`
	SyncedAt time.Time `json:"syncedAt" firestore:"syncedAt"`
}

// ThreadsShare records the Threads post created for a blog post.
type ThreadsShare struct {
	MediaID   string    `json:"mediaId" firestore:"mediaId"`
	Permalink string    `json:"permalink" firestore:"permalink"`
	PostedAt  time.Time `json:"postedAt" firestore:"postedAt"`
}

// PostQuery filters a user's posts.
type PostQuery struct {
	Status PostStatus
	Limit  int
}
