package wordpress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"blogpilot/internal/domain"
	"blogpilot/internal/infra/credentials"
	"blogpilot/internal/posts"
)

// Service connects users to their WordPress site and mirrors posts there.
type Service struct {
	users  domain.UserRepository
	posts  *posts.Service
	client *Client
	cipher *credentials.Cipher
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(users domain.UserRepository, postSvc *posts.Service, client *Client, cipher *credentials.Cipher, logger zerolog.Logger) *Service {
	return &Service{
		users:  users,
		posts:  postSvc,
		client: client,
		cipher: cipher,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type ConnectInput struct {
	SiteURL     string
	Username    string
	AppPassword string
}

// Connect verifies the application password against the site and stores it
// sealed on the user document.
func (s *Service) Connect(ctx context.Context, userID string, in ConnectInput) (*domain.WordPressIntegration, *User, error) {
	site, err := NormalizeSiteURL(in.SiteURL)
	if err != nil {
		return nil, nil, err
	}
	username := strings.TrimSpace(in.Username)
	password := strings.TrimSpace(in.AppPassword)
	if username == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: username and application password are required", domain.ErrInvalidInput)
	}
	creds := Credentials{SiteURL: site, Username: username, Password: password}
	me, err := s.client.Me(ctx, creds)
	if err != nil {
		return nil, nil, err
	}
	sealed, err := s.cipher.Seal(userID, credentials.PurposeWordPress, password)
	if err != nil {
		return nil, nil, err
	}
	wp := &domain.WordPressIntegration{
		SiteURL:        site,
		Username:       username,
		PasswordSealed: sealed,
		ConnectedAt:    s.now(),
	}
	if err := s.users.SetWordPress(ctx, userID, wp); err != nil {
		return nil, nil, fmt.Errorf("save wordpress integration: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("site", site).Msg("wordpress connected")
	return wp, me, nil
}

func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.users.SetWordPress(ctx, userID, nil); err != nil {
		return fmt.Errorf("clear wordpress integration: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Msg("wordpress disconnected")
	return nil
}

func (s *Service) Categories(ctx context.Context, userID string) ([]Category, error) {
	creds, err := s.credentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.client.Categories(ctx, creds)
}

// SyncPost creates the remote post on first sync and updates it afterwards.
// A remote post deleted on the WordPress side is recreated.
func (s *Service) SyncPost(ctx context.Context, userID, postID string, categories []int64) (*domain.Post, error) {
	p, err := s.posts.Get(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	creds, err := s.credentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	payload := PayloadFor(p, categories)

	var remote *RemotePost
	if p.WordPress != nil && p.WordPress.PostID > 0 {
		remote, err = s.client.UpdatePost(ctx, creds, p.WordPress.PostID, payload)
		if errors.Is(err, ErrRemoteNotFound) {
			s.logger.Info().Str("post_id", p.ID).Int64("wp_id", p.WordPress.PostID).Msg("remote post missing, recreating")
			remote, err = s.client.CreatePost(ctx, creds, payload)
		}
	} else {
		remote, err = s.client.CreatePost(ctx, creds, payload)
	}
	if err != nil {
		return nil, err
	}
	updated, err := s.posts.RecordWordPress(ctx, p, domain.WordPressSync{
		PostID:   remote.ID,
		Link:     remote.Link,
		SyncedAt: s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Str("post_id", p.ID).Int64("wp_id", remote.ID).Msg("post synced to wordpress")
	return updated, nil
}

// Connected reports whether userID has a WordPress integration.
func (s *Service) Connected(ctx context.Context, userID string) (bool, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.WordPress != nil, nil
}

func (s *Service) credentials(ctx context.Context, userID string) (Credentials, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return Credentials{}, err
	}
	if u.WordPress == nil {
		return Credentials{}, fmt.Errorf("%w: wordpress", domain.ErrIntegrationMissing)
	}
	password, err := s.cipher.Open(userID, credentials.PurposeWordPress, u.WordPress.PasswordSealed)
	if err != nil {
		return Credentials{}, fmt.Errorf("open wordpress password: %w", err)
	}
	return Credentials{SiteURL: u.WordPress.SiteURL, Username: u.WordPress.Username, Password: password}, nil
}

// PayloadFor maps a blog post onto the WordPress post schema.
func PayloadFor(p *domain.Post, categories []int64) PostPayload {
	payload := PostPayload{
		Title:      p.Title,
		Content:    p.Content,
		Excerpt:    p.Excerpt,
		Slug:       p.Slug,
		Categories: categories,
	}
	switch p.Status {
	case domain.PostStatusPublished:
		payload.Status = "publish"
	case domain.PostStatusScheduled:
		payload.Status = "future"
		if p.PublishAt != nil {
			payload.DateGMT = p.PublishAt.UTC().Format("2006-01-02T15:04:05")
		}
	case domain.PostStatusArchived:
		payload.Status = "private"
	default:
		payload.Status = "draft"
	}
	return payload
}
