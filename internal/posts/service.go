package posts

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"

	"blogpilot/internal/domain"
	"blogpilot/internal/sanitize"
	"blogpilot/pkg/zip"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200

	maxTitleRunes   = 200
	maxExcerptRunes = 300
	maxTags         = 20
	maxSlugLen      = 80
	maxSlugAttempts = 1000
)

// Service manages blog posts owned by a user.
type Service struct {
	repo   domain.PostRepository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo domain.PostRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	Title         string
	Content       string
	Excerpt       string
	Tags          []string
	CoverImageURL string
	Status        domain.PostStatus
	PublishAt     *time.Time
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Title         *string
	Content       *string
	Excerpt       *string
	Tags          *[]string
	CoverImageURL *string
}

func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*domain.Post, error) {
	title, err := cleanTitle(in.Title)
	if err != nil {
		return nil, err
	}
	now := s.now()
	p := &domain.Post{
		ID:            uuid.NewString(),
		UserID:        userID,
		Title:         title,
		Content:       sanitize.HTML(in.Content),
		Tags:          cleanTags(in.Tags),
		CoverImageURL: strings.TrimSpace(in.CoverImageURL),
		Status:        domain.PostStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	p.Excerpt = excerpt(in.Excerpt, p.Content)

	switch status := in.Status; status {
	case "", domain.PostStatusDraft:
	case domain.PostStatusPublished:
		p.Status = status
		p.PublishedAt = &now
	case domain.PostStatusScheduled:
		if err := s.checkFuture(in.PublishAt); err != nil {
			return nil, err
		}
		at := in.PublishAt.UTC()
		p.Status = status
		p.PublishAt = &at
	default:
		return nil, fmt.Errorf("%w: cannot create a post with status %q", domain.ErrInvalidInput, status)
	}

	if p.Slug, err = s.uniqueSlug(ctx, userID, title, ""); err != nil {
		return nil, err
	}
	if err := s.repo.CreatePost(ctx, p); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("post_id", p.ID).Str("status", string(p.Status)).Msg("post created")
	return p, nil
}

// Get returns the post when it belongs to userID. Foreign posts look missing.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Post, error) {
	p, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*domain.Post, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		title, err := cleanTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		if title != p.Title {
			p.Title = title
			if p.Status != domain.PostStatusPublished {
				if p.Slug, err = s.uniqueSlug(ctx, userID, title, p.ID); err != nil {
					return nil, err
				}
			}
		}
	}
	if in.Content != nil {
		p.Content = sanitize.HTML(*in.Content)
		if in.Excerpt == nil {
			p.Excerpt = excerpt("", p.Content)
		}
	}
	if in.Excerpt != nil {
		p.Excerpt = excerpt(*in.Excerpt, p.Content)
	}
	if in.Tags != nil {
		p.Tags = cleanTags(*in.Tags)
	}
	if in.CoverImageURL != nil {
		p.CoverImageURL = strings.TrimSpace(*in.CoverImageURL)
	}
	return s.save(ctx, p)
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.DeletePost(ctx, id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("post_id", id).Msg("post deleted")
	return nil
}

func (s *Service) List(ctx context.Context, userID string, status domain.PostStatus, limit int) ([]domain.Post, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, status)
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.repo.ListPosts(ctx, userID, domain.PostQuery{Status: status, Limit: limit})
}

func (s *Service) Publish(ctx context.Context, userID, id string) (*domain.Post, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.publish(ctx, p)
}

func (s *Service) publish(ctx context.Context, p *domain.Post) (*domain.Post, error) {
	if p.Status == domain.PostStatusPublished {
		return p, nil
	}
	now := s.now()
	p.Status = domain.PostStatusPublished
	p.PublishedAt = &now
	p.PublishAt = nil
	return s.save(ctx, p)
}

func (s *Service) Schedule(ctx context.Context, userID, id string, at time.Time) (*domain.Post, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.PostStatusPublished || p.Status == domain.PostStatusArchived {
		return nil, fmt.Errorf("%w: %s posts cannot be scheduled", domain.ErrInvalidInput, p.Status)
	}
	if err := s.checkFuture(&at); err != nil {
		return nil, err
	}
	at = at.UTC()
	p.Status = domain.PostStatusScheduled
	p.PublishAt = &at
	return s.save(ctx, p)
}

func (s *Service) Archive(ctx context.Context, userID, id string) (*domain.Post, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PostStatusArchived
	p.PublishAt = nil
	return s.save(ctx, p)
}

// PublishDue flips scheduled posts whose publishAt has passed.
func (s *Service) PublishDue(ctx context.Context, limit int) ([]domain.Post, error) {
	due, err := s.repo.ListDueScheduled(ctx, s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due posts: %w", err)
	}
	out := make([]domain.Post, 0, len(due))
	var errs []error
	for i := range due {
		p, err := s.publish(ctx, &due[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("post %s: %w", due[i].ID, err))
			continue
		}
		out = append(out, *p)
	}
	return out, errors.Join(errs...)
}

// RecordWordPress stores the remote post reference after a sync.
func (s *Service) RecordWordPress(ctx context.Context, p *domain.Post, sync domain.WordPressSync) (*domain.Post, error) {
	p.WordPress = &sync
	return s.save(ctx, p)
}

// RecordThreads stores the Threads post reference after a share.
func (s *Service) RecordThreads(ctx context.Context, p *domain.Post, share domain.ThreadsShare) (*domain.Post, error) {
	p.Threads = &share
	return s.save(ctx, p)
}

// Export renders every post of userID as a standalone HTML file in a zip.
func (s *Service) Export(ctx context.Context, userID string) ([]byte, int, error) {
	list, err := s.repo.ListPosts(ctx, userID, domain.PostQuery{})
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	entries := make([]zip.Entry, 0, len(list))
	for _, p := range list {
		entries = append(entries, zip.Entry{
			Name:     p.Slug + ".html",
			Data:     []byte(renderHTML(p)),
			Modified: p.UpdatedAt,
		})
	}
	data, err := zip.Archive(entries)
	if err != nil {
		return nil, 0, err
	}
	return data, len(entries), nil
}

func (s *Service) save(ctx context.Context, p *domain.Post) (*domain.Post, error) {
	p.UpdatedAt = s.now()
	if err := s.repo.UpdatePost(ctx, p); err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	return p, nil
}

func (s *Service) checkFuture(at *time.Time) error {
	if at == nil || at.IsZero() {
		return fmt.Errorf("%w: publishAt is required", domain.ErrInvalidInput)
	}
	if !at.After(s.now()) {
		return fmt.Errorf("%w: publishAt must be in the future", domain.ErrInvalidInput)
	}
	return nil
}

func (s *Service) uniqueSlug(ctx context.Context, userID, title, excludeID string) (string, error) {
	base := Slugify(title)
	candidate := base
	for n := 2; n <= maxSlugAttempts; n++ {
		exists, err := s.repo.SlugExists(ctx, userID, candidate, excludeID)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
	return base + "-" + uuid.NewString()[:8], nil
}

// Slugify turns a title into a lowercase ASCII slug.
func Slugify(title string) string {
	out := slug.Make(title)
	if len(out) > maxSlugLen {
		out = strings.TrimRight(out[:maxSlugLen], "-")
	}
	if out == "" {
		return "post"
	}
	return out
}

func cleanTitle(raw string) (string, error) {
	title := sanitize.Title(raw)
	if title == "" {
		return "", fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		return "", fmt.Errorf("%w: title exceeds %d characters", domain.ErrInvalidInput, maxTitleRunes)
	}
	return title, nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(sanitize.Title(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

func excerpt(given, content string) string {
	if strings.TrimSpace(given) != "" {
		return sanitize.Truncate(sanitize.Text(given), maxExcerptRunes)
	}
	return sanitize.Excerpt(content, maxExcerptRunes)
}

func renderHTML(p domain.Post) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(html.EscapeString(p.Title))
	b.WriteString("</title>\n")
	if p.Excerpt != "" {
		fmt.Fprintf(&b, "<meta name=\"description\" content=\"%s\">\n", html.EscapeString(p.Excerpt))
	}
	b.WriteString("</head>\n<body>\n<article>\n<h1>")
	b.WriteString(html.EscapeString(p.Title))
	b.WriteString("</h1>\n")
	b.WriteString(p.Content)
	b.WriteString("\n</article>\n</body>\n</html>\n")
	return b.String()
}
